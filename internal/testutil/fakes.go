package testutil

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"jobgate/internal/auth"
	"jobgate/internal/notify"
)

// FakeStore is an in-memory object store.
type FakeStore struct {
	mu        sync.Mutex
	Objects   map[string][]byte
	Deleted   []string
	UploadErr error
}

// NewFakeStore returns an empty store.
func NewFakeStore() *FakeStore {
	return &FakeStore{Objects: map[string][]byte{}}
}

func (s *FakeStore) UploadFile(_ context.Context, objectKey string, reader io.Reader, _ int64, _ string) error {
	if s.UploadErr != nil {
		return s.UploadErr
	}
	b, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Objects[objectKey] = b
	return nil
}

func (s *FakeStore) DeleteObject(_ context.Context, objectKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Deleted = append(s.Deleted, objectKey)
	delete(s.Objects, objectKey)
	return nil
}

func (s *FakeStore) GeneratePresignedURL(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.Objects[objectKey]; !ok {
		return "", errors.New("no such key")
	}
	return "https://storage.example.com/" + objectKey, nil
}

// Sent is a message captured by RecordingTransport.
type Sent struct {
	To      string
	Subject string
	Body    string
}

// RecordingTransport captures email and push sends and answers with Outcome.
type RecordingTransport struct {
	mu      sync.Mutex
	Outcome notify.Delivery
	Sent    []Sent
}

// NewRecordingTransport returns a transport that reports every send as delivered.
func NewRecordingTransport() *RecordingTransport {
	return &RecordingTransport{Outcome: notify.Delivered()}
}

func (r *RecordingTransport) SendEmail(_ context.Context, to, subject, body string) notify.Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Sent = append(r.Sent, Sent{To: to, Subject: subject, Body: body})
	return r.Outcome
}

func (r *RecordingTransport) SendPush(_ context.Context, token, title, body string, _ map[string]string) notify.Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Sent = append(r.Sent, Sent{To: token, Subject: title, Body: body})
	return r.Outcome
}

// Count returns the number of captured sends.
func (r *RecordingTransport) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Sent)
}

// NewAuthService returns an auth service backed by a freshly generated key.
func NewAuthService(t *testing.T) *auth.AuthService {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return auth.NewAuthServiceFromKeys(key, &key.PublicKey, time.Hour, 24*time.Hour)
}
