package notify

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/requestvault/requestvault/internal/platform/httpx"
)

type memoryRepo struct {
	mu     sync.Mutex
	nextID int64
	items  []Notification
}

func (m *memoryRepo) Insert(_ context.Context, n *Notification) (*Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	stored := *n
	stored.ID = m.nextID
	stored.CreatedAt = time.Now()
	m.items = append(m.items, stored)
	return &stored, nil
}

func (m *memoryRepo) ListForAccount(_ context.Context, accountID int64, unreadOnly bool, _ int) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Notification
	for _, n := range m.items {
		if n.AccountID != accountID {
			continue
		}
		if unreadOnly && n.ReadAt != nil {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (m *memoryRepo) MarkRead(_ context.Context, accountID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID == id && m.items[i].AccountID == accountID {
			now := time.Now()
			m.items[i].ReadAt = &now
			return nil
		}
	}
	return httpx.ErrNotFound
}

func newTestService(t *testing.T) (*Service, *memoryRepo, *redis.Client) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := &memoryRepo{}
	return NewService(repo, client, nil, nil), repo, client
}

func TestNotifyStoresAndPublishes(t *testing.T) {
	svc, repo, client := newTestService(t)

	sub := client.Subscribe(context.Background(), channelFor(7))
	defer sub.Close()
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	svc.Notify(7, KindRequestApproved, "your request was approved")

	items, err := repo.ListForAccount(context.Background(), 7, false, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, KindRequestApproved, items[0].Kind)

	select {
	case msg := <-sub.Channel():
		var got event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		require.Equal(t, KindRequestApproved, got.Kind)
		require.Equal(t, "your request was approved", got.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a published notification")
	}
}

func TestNotifySurvivesRedisOutage(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := &memoryRepo{}
	svc := NewService(repo, client, nil, nil)

	srv.Close()
	svc.Notify(3, KindRequestSubmitted, "new request")

	items, err := repo.ListForAccount(context.Background(), 3, false, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestMarkReadScopedToOwner(t *testing.T) {
	svc, repo, _ := newTestService(t)
	stored, err := repo.Insert(context.Background(), &Notification{AccountID: 1, Kind: KindRequestSubmitted, Message: "m"})
	require.NoError(t, err)

	err = svc.MarkRead(context.Background(), 2, stored.ID)
	require.ErrorIs(t, err, httpx.ErrNotFound)

	require.NoError(t, svc.MarkRead(context.Background(), 1, stored.ID))

	unread, err := svc.ListForAccount(context.Background(), 1, true, 0)
	require.NoError(t, err)
	require.Empty(t, unread)
}
