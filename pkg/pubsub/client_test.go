package pubsub

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/checkout-engine/pkg/config"
)

func TestResourceName(t *testing.T) {
	t.Parallel()
	cases := []struct {
		project, kind, name, want string
	}{
		{"proj", "topics", "checkout-domain-events", "projects/proj/topics/checkout-domain-events"},
		{"proj", "subscriptions", " feed ", "projects/proj/subscriptions/feed"},
		{"proj", "topics", "projects/other/topics/x", "projects/other/topics/x"},
		{"", "topics", "x", ""},
		{"proj", "topics", "  ", ""},
	}
	for _, tc := range cases {
		if got := resourceName(tc.project, tc.kind, tc.name); got != tc.want {
			t.Fatalf("resourceName(%q,%q,%q)=%q want %q", tc.project, tc.kind, tc.name, got, tc.want)
		}
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	if _, err := NewClient(ctx, config.GCPConfig{}, config.PubSubConfig{DomainTopic: "t"}, nil); !errors.Is(err, errProjectIDRequired) {
		t.Fatalf("expected project error, got %v", err)
	}
	if _, err := NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.PubSubConfig{}, nil); !errors.Is(err, errTopicRequired) {
		t.Fatalf("expected topic error, got %v", err)
	}
}

func TestNilClientIsSafe(t *testing.T) {
	t.Parallel()
	var c *Client
	if c.Publisher("x") != nil || c.Subscription("x") != nil {
		t.Fatal("nil client must return nil handles")
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error on nil client")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestSettlementSubscriptionOnNilClient(t *testing.T) {
	t.Parallel()
	var c *Client
	if c.SettlementSubscription() != nil {
		t.Fatal("expected nil subscriber")
	}
	empty := &Client{projectID: "proj"}
	if empty.resource("topics", "domain") != "projects/proj/topics/domain" {
		t.Fatalf("unexpected resource %q", empty.resource("topics", "domain"))
	}
}

func TestDescribeMapsNotFound(t *testing.T) {
	t.Parallel()
	if err := describe("topic", "t", nil); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	err := describe("subscription", "feed", status.Error(codes.NotFound, "gone"))
	if err == nil || err.Error() != `subscription "feed" does not exist` {
		t.Fatalf("unexpected error %v", err)
	}
	cause := status.Error(codes.PermissionDenied, "denied")
	if err := describe("topic", "t", cause); !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}
