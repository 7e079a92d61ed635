package testutil

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gopiashokan/Educational-Management-System/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		ID:        uuid.New().String(),
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// StripePNG renders a small synthetic grayscale image whose stripe period
// gives each writer a distinguishable texture.
func StripePNG(t *testing.T, w, h, period int, vertical bool) []byte {
	t.Helper()

	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pos := x
			if !vertical {
				pos = y
			}
			var v uint8
			if (pos/period)%2 == 0 {
				v = 255
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("StripePNG() failed: %v", err)
	}
	return buf.Bytes()
}

// WriteSampleSet fills dir with per-writer sample folders suitable for
// training, count images each.
func WriteSampleSet(t *testing.T, dir string, writers map[string]int, count int) {
	t.Helper()

	for writer, period := range writers {
		wd := filepath.Join(dir, writer)
		if err := os.MkdirAll(wd, 0o755); err != nil {
			t.Fatalf("WriteSampleSet() failed: %v", err)
		}
		for i := 0; i < count; i++ {
			data := StripePNG(t, 64, 64, period, i%2 == 0)
			name := filepath.Join(wd, "sample"+string(rune('a'+i))+".png")
			if err := os.WriteFile(name, data, 0o644); err != nil {
				t.Fatalf("WriteSampleSet() failed: %v", err)
			}
		}
	}
}
