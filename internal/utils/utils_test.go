package utils

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLogLevel(t *testing.T) {
	t.Cleanup(func() { Log.SetLevel(logrus.InfoLevel) })

	SetLogLevel("DEBUG")
	assert.Equal(t, logrus.DebugLevel, Log.GetLevel())

	SetLogLevel("warning")
	assert.Equal(t, logrus.WarnLevel, Log.GetLevel())
}

func TestFieldsSkipsNonStringKeys(t *testing.T) {
	f := fields([]interface{}{"url", "https://shop.test", 3, "ignored", "dangling"})
	assert.Equal(t, logrus.Fields{"url": "https://shop.test"}, f)
}

func TestSnapshotLockRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "planscope.sqlite")

	l, err := NewSnapshotLock(dbPath, "plans for shop.test/akk")
	require.NoError(t, err)
	assert.Equal(t, dbPath+lockFileSuffix, l.path)
	assert.Equal(t, "plan snapshots", l.Holder())

	require.NoError(t, l.Lock(context.Background()))
	assert.Equal(t, "plans for shop.test/akk (pid "+strconv.Itoa(os.Getpid())+")", l.Holder())
	require.NoError(t, l.Unlock())
	assert.Equal(t, "plan snapshots", l.Holder())
}

func TestSnapshotLockWaitNamesHolder(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "planscope.sqlite")

	first, err := NewSnapshotLock(dbPath, "plans for shop.test/akk, shop.test/tea")
	require.NoError(t, err)
	require.NoError(t, first.Lock(context.Background()))
	defer first.Unlock()

	second, err := NewSnapshotLock(dbPath, "removal of shop.test/akk")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = second.Lock(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "plans for shop.test/akk, shop.test/tea")
}

func TestGetAbsDBPathExpandsHome(t *testing.T) {
	home, err := homedir.Dir()
	require.NoError(t, err)

	p, err := GetAbsDBPath("~/plans.sqlite")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "plans.sqlite"), p)

	p, err = GetAbsDBPath("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "planscope", "planscope.sqlite"), p)
}
