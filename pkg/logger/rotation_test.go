package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"
)

func TestNewRotationWriter(t *testing.T) {
	dir := t.TempDir()

	w, err := NewRotationWriter(&RotationConfig{Type: RotationBySize, MaxSize: 1}, filepath.Join(dir, "size.log"))
	require.NoError(t, err)
	_, ok := w.(*lumberjack.Logger)
	assert.True(t, ok)

	w, err = NewRotationWriter(&RotationConfig{Type: RotationByTime, RotationTime: "bad", MaxAgeTime: "1h"}, filepath.Join(dir, "time.log"))
	require.NoError(t, err)
	_, err = w.Write([]byte("line\n"))
	assert.NoError(t, err)
}
