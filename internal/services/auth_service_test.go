package services

import (
	"context"
	"errors"
	"testing"
	"time"
)

type authStubStore struct {
	users map[string]*User
}

func newAuthStubStore() *authStubStore {
	return &authStubStore{users: map[string]*User{}}
}

func (s *authStubStore) GetUser(_ context.Context, id string) (*User, error) {
	for _, u := range s.users {
		if u.ID == id {
			copy := *u
			return &copy, nil
		}
	}
	return nil, nil
}

func (s *authStubStore) GetUserByUsername(_ context.Context, username string) (*User, error) {
	if u, ok := s.users[username]; ok {
		copy := *u
		return &copy, nil
	}
	return nil, nil
}

func (s *authStubStore) InsertUser(_ context.Context, u *User) error {
	if _, ok := s.users[u.Username]; ok {
		return errors.New("duplicate user")
	}
	copy := *u
	s.users[u.Username] = &copy
	return nil
}

func (s *authStubStore) ListUsersByRole(_ context.Context, role Role) ([]*User, error) {
	out := []*User{}
	for _, u := range s.users {
		if u.Role == role {
			copy := *u
			out = append(out, &copy)
		}
	}
	return out, nil
}

func stubSigner(uid, username string, role Role, ttl time.Duration) (string, error) {
	return "token:" + uid + ":" + string(role), nil
}

func TestAuthRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	store := newAuthStubStore()
	svc := NewAuthService(store, stubSigner, time.Hour)
	svc.now = func() time.Time { return time.Unix(0, 0) }
	svc.idGenerator = func() string { return "u1" }

	res, err := svc.Register(ctx, RegisterInput{Username: "alice", Password: "secret1"})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if res.User.Role != RoleRater {
		t.Fatalf("role = %q, want %q", res.User.Role, RoleRater)
	}
	if res.Token != "token:u1:rater" {
		t.Fatalf("unexpected token %q", res.Token)
	}

	_, err = svc.Register(ctx, RegisterInput{Username: "alice", Password: "secret1"})
	if !IsCode(err, ErrorConflict) {
		t.Fatalf("expected conflict on duplicate username, got %v", err)
	}

	loginRes, err := svc.Login(ctx, "alice", "secret1")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if loginRes.Token == "" {
		t.Fatalf("expected token in login response")
	}
	if _, err := svc.Login(ctx, "alice", "wrong"); !IsCode(err, ErrorUnauthorized) {
		t.Fatalf("expected unauthorized for wrong password, got %v", err)
	}
	if _, err := svc.Login(ctx, "bob", "secret1"); !IsCode(err, ErrorUnauthorized) {
		t.Fatalf("expected unauthorized for missing user, got %v", err)
	}
}

func TestAuthValidation(t *testing.T) {
	ctx := context.Background()
	svc := NewAuthService(newAuthStubStore(), stubSigner, 0)

	cases := []RegisterInput{
		{Username: "ab", Password: "secret1"},
		{Username: "alice", Password: "12345"},
		{Username: "alice", Password: "secret1", Role: "admin"},
	}
	for _, in := range cases {
		if _, err := svc.Register(ctx, in); !IsCode(err, ErrorInvalid) {
			t.Fatalf("Register(%+v) = %v, want invalid", in, err)
		}
	}
	if _, err := svc.Login(ctx, "", ""); !IsCode(err, ErrorInvalid) {
		t.Fatalf("expected validation error on login, got %v", err)
	}
	if svc.TokenTTL() != 7*24*time.Hour {
		t.Fatalf("default ttl = %v", svc.TokenTTL())
	}
}

func TestListRatersRequiresRequester(t *testing.T) {
	ctx := context.Background()
	store := newAuthStubStore()
	store.users["r1"] = &User{ID: "1", Username: "r1", Role: RoleRater}
	store.users["q1"] = &User{ID: "2", Username: "q1", Role: RoleRequester}
	svc := NewAuthService(store, stubSigner, time.Hour)

	if _, err := svc.ListRaters(ctx, Principal{UserID: "1", Role: RoleRater}); !IsCode(err, ErrorForbidden) {
		t.Fatalf("expected forbidden for rater, got %v", err)
	}
	raters, err := svc.ListRaters(ctx, Principal{UserID: "2", Role: RoleRequester})
	if err != nil {
		t.Fatalf("ListRaters: %v", err)
	}
	if len(raters) != 1 || raters[0].Username != "r1" {
		t.Fatalf("raters = %+v", raters)
	}
}
