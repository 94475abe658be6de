package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Abdualsslam/tras-phone-sub000/internal/repository"
)

// BotReply is the canned response produced by a matching rule.
type BotReply struct {
	RuleID       string
	RuleName     string
	Response     string
	QuickReplies []string
}

// BotMatcher pattern-matches visitor messages against ranked rules while a
// session is queued. Matching is stateless per call.
type BotMatcher struct {
	rules  repository.BotRuleRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewBotMatcher constructs the matcher.
func NewBotMatcher(rules repository.BotRuleRepository, logger *zap.Logger) *BotMatcher {
	return &BotMatcher{rules: rules, logger: logger, now: time.Now}
}

// ProcessMessage returns the highest-priority matching rule's reply, or nil
// when no rule matches. A match bumps the rule's usage counter.
func (m *BotMatcher) ProcessMessage(ctx context.Context, text string) (*BotReply, error) {
	rules, err := m.rules.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	for _, rule := range rules {
		if !matchesAny(rule.Patterns, text) {
			continue
		}
		if err := m.rules.RecordUsage(ctx, rule.ID, m.now()); err != nil {
			m.logger.Warn("bot rule usage update failed", zap.String("rule_id", rule.ID), zap.Error(err))
		}
		return &BotReply{
			RuleID:       rule.ID,
			RuleName:     rule.Name,
			Response:     rule.Response,
			QuickReplies: rule.QuickReplies,
		}, nil
	}
	return nil, nil
}

// matchesAny treats each pattern as a regular expression, falling back to a
// case-insensitive substring check when the pattern does not compile.
func matchesAny(patterns []string, text string) bool {
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			if strings.Contains(strings.ToLower(text), strings.ToLower(pattern)) {
				return true
			}
			continue
		}
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
