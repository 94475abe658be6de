package service

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/Abdualsslam/tras-phone-sub000/internal/domain"
)

func TestBotMatcherPriorityOrder(t *testing.T) {
	repo := newFakeBotRuleRepo(
		domain.BotRule{ID: "low", Name: "greeting", Priority: 1, Patterns: []string{"hello"}, Response: "low reply", IsActive: true},
		domain.BotRule{ID: "high", Name: "greeting-priority", Priority: 10, Patterns: []string{"hello"}, Response: "high reply", IsActive: true},
	)
	matcher := NewBotMatcher(repo, zap.NewNop())

	reply, err := matcher.ProcessMessage(context.Background(), "hello there")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply == nil {
		t.Fatal("expected a match")
	}
	if reply.RuleID != "high" {
		t.Errorf("expected highest priority rule to win, got %s", reply.RuleID)
	}
	if repo.used["high"] != 1 {
		t.Errorf("expected usage recorded once for high, got %d", repo.used["high"])
	}
	if repo.used["low"] != 0 {
		t.Errorf("lower rule should not record usage, got %d", repo.used["low"])
	}
}

func TestBotMatcherRegexPattern(t *testing.T) {
	repo := newFakeBotRuleRepo(
		domain.BotRule{ID: "hours", Priority: 5, Patterns: []string{`(?i)opening\s+hours?`}, Response: "We are open 9-5.", IsActive: true},
	)
	matcher := NewBotMatcher(repo, zap.NewNop())

	reply, err := matcher.ProcessMessage(context.Background(), "What are your Opening Hours please?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply == nil || reply.Response != "We are open 9-5." {
		t.Fatalf("expected hours reply, got %+v", reply)
	}
}

func TestBotMatcherInvalidRegexFallsBackToSubstring(t *testing.T) {
	// "price[" does not compile as a regex; the matcher must fall back to a
	// case-insensitive substring check.
	repo := newFakeBotRuleRepo(
		domain.BotRule{ID: "pricing", Priority: 5, Patterns: []string{"price["}, Response: "See pricing page.", IsActive: true},
	)
	matcher := NewBotMatcher(repo, zap.NewNop())

	reply, err := matcher.ProcessMessage(context.Background(), "How much is the PRICE[ of this?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply == nil {
		t.Fatal("expected substring fallback to match")
	}
}

func TestBotMatcherNonLatinText(t *testing.T) {
	repo := newFakeBotRuleRepo(
		domain.BotRule{ID: "arabic-greeting", Priority: 5, Patterns: []string{"مرحبا"}, Response: "أهلاً بك", IsActive: true},
	)
	matcher := NewBotMatcher(repo, zap.NewNop())

	reply, err := matcher.ProcessMessage(context.Background(), "مرحبا، أحتاج مساعدة")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply == nil || reply.Response != "أهلاً بك" {
		t.Fatalf("expected arabic greeting reply, got %+v", reply)
	}
}

func TestBotMatcherNoMatch(t *testing.T) {
	repo := newFakeBotRuleRepo(
		domain.BotRule{ID: "refund", Priority: 5, Patterns: []string{"refund"}, Response: "Refund policy...", IsActive: true},
		domain.BotRule{ID: "inactive", Priority: 50, Patterns: []string{".*"}, Response: "should not fire", IsActive: false},
	)
	matcher := NewBotMatcher(repo, zap.NewNop())

	reply, err := matcher.ProcessMessage(context.Background(), "where is my order")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != nil {
		t.Fatalf("expected no match, got %+v", reply)
	}
}
