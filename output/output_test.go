package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := Writer
	Writer = &buf
	t.Cleanup(func() { Writer = prev })
	return &buf
}

func TestHelpersWriteMessage(t *testing.T) {
	buf := capture(t)

	Success("seeded %d products", 3)
	Warning("admin %s already exists", "admin@example.com")
	Error("boom")
	Info("connecting")

	out := buf.String()
	assert.Contains(t, out, "seeded 3 products")
	assert.Contains(t, out, "admin admin@example.com already exists")
	assert.Contains(t, out, "boom")
	assert.Equal(t, 4, strings.Count(out, "\n"))
}

func TestSection(t *testing.T) {
	buf := capture(t)

	Section("Seed")
	assert.Contains(t, buf.String(), "Seed")
	assert.Contains(t, buf.String(), "════")
}

func TestKeyValue(t *testing.T) {
	buf := capture(t)

	KeyValue("categories", 4)
	assert.Contains(t, buf.String(), "categories:")
	assert.Contains(t, buf.String(), "4")
}
