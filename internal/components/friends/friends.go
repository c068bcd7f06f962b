// Package friends manages per-user friend lists and friend requests.
//
// A friend relation is one-directional: each side keeps its own record and
// removing a friend only touches the caller's list.
package friends

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/MahdiBaghbani/calshare-go/internal/components/identity"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/store"
)

var (
	ErrSelfRequest    = errors.New("cannot send a friend request to yourself")
	ErrAlreadyFriends = errors.New("already friends")
	ErrUserNotFound   = errors.New("no user with that friend id")
)

// Friend is an entry in a user's friend list. UserID is persisted as "friendID".
type Friend struct {
	UserID   string `json:"friendID" mapstructure:"friendID"`
	FullName string `json:"fullName" mapstructure:"fullName"`
}

// RequestSender delivers a friend request notification.
type RequestSender interface {
	SendFriendRequest(ctx context.Context, senderID, senderName, recipientID string) (string, error)
}

// UserLookup resolves public friend ids.
type UserLookup interface {
	ByFriendID(ctx context.Context, friendID string) (*identity.User, error)
}

// Service is the friend list of every user.
type Service struct {
	store store.DocumentStore
	log   *slog.Logger
}

func New(st store.DocumentStore, log *slog.Logger) *Service {
	log = logutil.NoopIfNil(log)
	return &Service{store: st, log: log}
}

// List returns the owner's friends sorted by name.
func (s *Service) List(ctx context.Context, ownerID string) ([]Friend, error) {
	snaps, err := s.store.List(ctx, ownerID, store.CollectionFriends)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	out := make([]Friend, 0, len(snaps))
	for _, snap := range snaps {
		var f Friend
		if err := store.DecodeInto(snap.Data, &f); err != nil {
			s.log.Warn("skipping unreadable friend record", "owner_id", ownerID, "id", snap.ID, "error", err)
			continue
		}
		if f.UserID == "" {
			f.UserID = snap.ID
		}
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

// Put writes the relation ownerID -> friendUserID, keyed by the friend's user id.
func (s *Service) Put(ctx context.Context, ownerID, friendUserID, fullName string) error {
	return s.store.CreateWithID(ctx, ownerID, store.CollectionFriends, friendUserID, store.Document{
		"friendID": friendUserID,
		"fullName": fullName,
	})
}

// IsFriend reports whether userID is on ownerID's list.
func (s *Service) IsFriend(ctx context.Context, ownerID, userID string) (bool, error) {
	_, err := s.store.Get(ctx, ownerID, store.CollectionFriends, userID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Remove deletes friendUserID from ownerID's list only.
func (s *Service) Remove(ctx context.Context, ownerID, friendUserID string) error {
	if err := s.store.Delete(ctx, ownerID, store.CollectionFriends, friendUserID); err != nil {
		return fmt.Errorf("remove friend: %w", err)
	}
	s.log.Debug("friend removed", "owner_id", ownerID, "friend_id", friendUserID)
	return nil
}

// SendRequest resolves the 7-digit friendID and sends sender's request to
// that user. It returns the recipient and the notification id.
func (s *Service) SendRequest(ctx context.Context, users UserLookup, sender RequestSender, from *identity.User, friendID string) (*identity.User, string, error) {
	to, err := users.ByFriendID(ctx, friendID)
	if errors.Is(err, identity.ErrUserNotFound) {
		return nil, "", ErrUserNotFound
	}
	if err != nil {
		return nil, "", err
	}
	if to.ID == from.ID {
		return nil, "", ErrSelfRequest
	}

	already, err := s.IsFriend(ctx, from.ID, to.ID)
	if err != nil {
		return nil, "", err
	}
	if already {
		return nil, "", ErrAlreadyFriends
	}

	id, err := sender.SendFriendRequest(ctx, from.ID, from.FullName, to.ID)
	if err != nil {
		return nil, "", err
	}
	return to, id, nil
}
