package ingest

import (
	"testing"
)

func intPtr(n int) *int       { return &n }
func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

// TestNormalizeActorAliases verifies the avatar field aliases and the
// nickname rule.
func TestNormalizeActorAliases(t *testing.T) {
	tests := []struct {
		name      string
		src       SourceActor
		wantName  string
		wantImage string
	}{
		{
			name:      "nickname differs from id",
			src:       SourceActor{UniqueID: "user1", Nickname: "Display", AvatarURL: "http://a/img.png"},
			wantName:  "Display",
			wantImage: "http://a/img.png",
		},
		{
			name:     "nickname equals id is dropped",
			src:      SourceActor{UniqueID: "user1", Nickname: "user1"},
			wantName: "user1",
		},
		{
			name:      "profile picture fallback",
			src:       SourceActor{UniqueID: "user1", ProfilePicture: "http://b/pic.png"},
			wantName:  "user1",
			wantImage: "http://b/pic.png",
		},
		{
			name:      "avatar wins over profile picture",
			src:       SourceActor{UniqueID: "user1", AvatarURL: "http://a/img.png", ProfilePicture: "http://b/pic.png"},
			wantName:  "user1",
			wantImage: "http://a/img.png",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actor := NormalizeActor(tt.src)
			if actor.Username != tt.src.UniqueID {
				t.Errorf("Username = %q, want %q", actor.Username, tt.src.UniqueID)
			}
			if got := actor.Name(); got != tt.wantName {
				t.Errorf("Name() = %q, want %q", got, tt.wantName)
			}
			if tt.wantImage == "" {
				if actor.ProfileImageURL != nil {
					t.Errorf("Expected nil image, got %q", *actor.ProfileImageURL)
				}
			} else if actor.ProfileImageURL == nil || *actor.ProfileImageURL != tt.wantImage {
				t.Errorf("Image = %v, want %q", actor.ProfileImageURL, tt.wantImage)
			}
		})
	}
}

// TestNormalizeActorOptionalFields verifies absent fields stay nil and
// present ones carry through, including explicit zero values.
func TestNormalizeActorOptionalFields(t *testing.T) {
	bare := NormalizeActor(SourceActor{UniqueID: "user1"})
	if bare.FollowerCount != nil || bare.FollowingCount != nil || bare.IsFollowingStreamer != nil {
		t.Error("Expected optional fields to stay nil when absent")
	}

	full := NormalizeActor(SourceActor{
		UniqueID:       "user1",
		FollowerCount:  intPtr(0),
		FollowingCount: intPtr(42),
		IsFollowing:    boolPtr(false),
	})
	if full.FollowerCount == nil || *full.FollowerCount != 0 {
		t.Errorf("Expected follower count 0 to survive, got %v", full.FollowerCount)
	}
	if full.FollowingCount == nil || *full.FollowingCount != 42 {
		t.Errorf("Expected following count 42, got %v", full.FollowingCount)
	}
	if full.IsFollowingStreamer == nil || *full.IsFollowingStreamer != false {
		t.Errorf("Expected explicit false to survive, got %v", full.IsFollowingStreamer)
	}
}

// TestNormalizeGiftPrecedence verifies coins win over the diamond count and
// the image URL over the icon URL.
func TestNormalizeGiftPrecedence(t *testing.T) {
	gift := NormalizeGift(SourceGift{
		ID:           strPtr("g1"),
		Name:         "Rose",
		RepeatCount:  3,
		Coins:        intPtr(10),
		DiamondCount: intPtr(99),
		ImageURL:     "http://a/rose.png",
		IconURL:      "http://b/rose-icon.png",
	})

	if gift.Coins == nil || *gift.Coins != 10 {
		t.Errorf("Expected coins 10 to win, got %v", gift.Coins)
	}
	if gift.ImageURL == nil || *gift.ImageURL != "http://a/rose.png" {
		t.Errorf("Expected image URL to win, got %v", gift.ImageURL)
	}
	if gift.Count != 3 {
		t.Errorf("Expected count 3, got %d", gift.Count)
	}
}

// TestNormalizeGiftFallbacks verifies the diamond count and icon URL are
// used when the preferred fields are absent, and the count floors at 1.
func TestNormalizeGiftFallbacks(t *testing.T) {
	gift := NormalizeGift(SourceGift{
		Name:         "Rose",
		DiamondCount: intPtr(99),
		IconURL:      "http://b/rose-icon.png",
	})

	if gift.Coins == nil || *gift.Coins != 99 {
		t.Errorf("Expected diamond count fallback, got %v", gift.Coins)
	}
	if gift.ImageURL == nil || *gift.ImageURL != "http://b/rose-icon.png" {
		t.Errorf("Expected icon URL fallback, got %v", gift.ImageURL)
	}
	if gift.Count != 1 {
		t.Errorf("Expected count to floor at 1, got %d", gift.Count)
	}
	if gift.GiftID != nil {
		t.Errorf("Expected nil gift id, got %v", gift.GiftID)
	}
}

// TestNotificationCapabilities verifies each notification type declares
// exactly the capabilities its payload needs.
func TestNotificationCapabilities(t *testing.T) {
	var n Notification

	n = JoinNotification{Viewers: 7}
	if bearer, ok := n.(ViewerCountBearer); !ok {
		t.Error("Join should carry a viewer count")
	} else if bearer.CurrentViewers() != 7 {
		t.Errorf("Expected 7 viewers, got %d", bearer.CurrentViewers())
	}

	n = CommentNotification{Text: "hello"}
	if bearer, ok := n.(ContentBearer); !ok {
		t.Error("Comment should carry content")
	} else if bearer.EventContent() != "hello" {
		t.Errorf("Expected content 'hello', got %q", bearer.EventContent())
	}
	if _, ok := n.(ViewerCountBearer); ok {
		t.Error("Comment should not carry a viewer count")
	}

	n = GiftNotification{Gift: SourceGift{Name: "Rose"}}
	if bearer, ok := n.(GiftBearer); !ok {
		t.Error("Gift notification should carry gift info")
	} else if bearer.GiftInfo().Name != "Rose" {
		t.Errorf("Expected gift Rose, got %q", bearer.GiftInfo().Name)
	}

	n = DisconnectNotification{}
	if _, ok := n.(ActorBearer); ok {
		t.Error("Disconnect should not carry an actor")
	}
}
