package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveUID(t *testing.T) {
	tests := []struct {
		name    string
		onDisk  string
		indexed string
		caller  string
		want    string
		wantOK  bool
	}{
		{"disk wins", "diskUID", "indexUID", "callerUID", "diskUID", true},
		{"index when disk empty", "", "indexUID", "callerUID", "indexUID", true},
		{"caller when nothing stored", "", "", "callerUID", "callerUID", true},
		{"none set", "", "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveUID(tt.onDisk, tt.indexed, tt.caller)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestResolveCreatedAt(t *testing.T) {
	tests := []struct {
		name   string
		onDisk int64
		caller int64
		now    int64
		want   int64
	}{
		{"disk wins", 100, 200, 300, 100},
		{"caller when disk unset", 0, 200, 300, 200},
		{"negative disk ignored", -5, 200, 300, 200},
		{"now when both unset", 0, 0, 300, 300},
		{"negative caller ignored", 0, -1, 300, 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveCreatedAt(tt.onDisk, tt.caller, tt.now))
		})
	}
}

func TestResolveUpdatedAt(t *testing.T) {
	tests := []struct {
		name     string
		created  int64
		previous int64
		now      int64
		want     int64
	}{
		{"now", 100, 150, 200, 200},
		{"created in the future", 500, 0, 200, 500},
		{"clock moved backwards", 100, 400, 300, 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveUpdatedAt(tt.created, tt.previous, tt.now))
		})
	}
}

func TestResolveViewCount(t *testing.T) {
	assert.Equal(t, uint64(7), ResolveViewCount(&PageMeta{ViewCount: 7}, 0))
	assert.Equal(t, uint64(0), ResolveViewCount(&PageMeta{}, 42), "stored counter cannot be overwritten")
	assert.Equal(t, uint64(42), ResolveViewCount(nil, 42))
}

func TestResolveOriginalID(t *testing.T) {
	assert.Equal(t, "first id", ResolveOriginalID("first id", "second id", "second_id"))
	assert.Equal(t, "my page", ResolveOriginalID("", "my page", "my_page"))
	assert.Equal(t, "", ResolveOriginalID("", "clean", "clean"))
}
