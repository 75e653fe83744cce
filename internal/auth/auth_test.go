package auth

import "testing"

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	if hash == "correct horse battery staple" {
		t.Fatal("Hash must not equal the plaintext")
	}

	if !CheckPassword(hash, "correct horse battery staple") {
		t.Error("Correct password rejected")
	}
	if CheckPassword(hash, "wrong password") {
		t.Error("Wrong password accepted")
	}
	if CheckPassword("not-a-hash", "anything") {
		t.Error("Garbage hash accepted")
	}
}

func TestNewToken(t *testing.T) {
	a, err := NewToken()
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if len(a) != 64 {
		t.Errorf("Token length = %d, want 64", len(a))
	}

	b, err := NewToken()
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if a == b {
		t.Error("Two tokens must not collide")
	}
}
