package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadProperties(t *testing.T) {
	t.Run("reads dotted and underscored keys", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tracker.properties")
		content := "aal_queue_name=orders_audit\naal.client_id=checkout-7\n# comment\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		props, err := LoadProperties(path)
		require.NoError(t, err)

		v, ok := props.Get(QueueNameProperty)
		assert.True(t, ok)
		assert.Equal(t, "orders_audit", v)

		v, ok = props.Get(ClientIDProperty)
		assert.True(t, ok)
		assert.Equal(t, "checkout-7", v)
		assert.Equal(t, 2, props.Len())
	})

	t.Run("missing file yields empty set", func(t *testing.T) {
		props, err := LoadProperties(filepath.Join(t.TempDir(), "absent.properties"))
		require.NoError(t, err)
		assert.Equal(t, 0, props.Len())
	})

	t.Run("empty path yields empty set", func(t *testing.T) {
		props, err := LoadProperties("")
		require.NoError(t, err)
		assert.Equal(t, 0, props.Len())
	})

	t.Run("malformed file is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.properties")
		require.NoError(t, os.WriteFile(path, []byte("not a valid $line\n"), 0o600))

		_, err := LoadProperties(path)
		assert.Error(t, err)
	})
}

func TestProperties_SetGetDelete(t *testing.T) {
	props := NewProperties()

	_, ok := props.Get("k")
	assert.False(t, ok)

	props.Set("k", "v")
	v, ok := props.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	props.Set("k", "")
	_, ok = props.Get("k")
	assert.False(t, ok, "empty values count as unset")

	props.Set("k", "v2")
	props.Delete("k")
	_, ok = props.Get("k")
	assert.False(t, ok)

	var nilProps *Properties
	_, ok = nilProps.Get("k")
	assert.False(t, ok)
}

func TestProperties_ConcurrentAccess(t *testing.T) {
	props := NewProperties()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			props.Set(ClientIDProperty, "writer")
		}()
		go func() {
			defer wg.Done()
			_, _ = props.Get(ClientIDProperty)
		}()
	}
	wg.Wait()

	v, ok := props.Get(ClientIDProperty)
	assert.True(t, ok)
	assert.Equal(t, "writer", v)
}

func TestResolver_QueueName(t *testing.T) {
	tests := []struct {
		name string
		env  string
		prop string
		want string
	}{
		{name: "default", want: DefaultQueueName},
		{name: "property", prop: "from_prop", want: "from_prop"},
		{name: "env wins over property", env: "from_env", prop: "from_prop", want: "from_env"},
		{name: "env only", env: "from_env", want: "from_env"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(QueueNameEnv, tt.env)

			props := NewProperties()
			if tt.prop != "" {
				props.Set(QueueNameProperty, tt.prop)
			}

			r := NewResolver(props)
			assert.Equal(t, tt.want, r.QueueName())
		})
	}
}

func TestResolver_ClientID(t *testing.T) {
	t.Setenv(ClientIDEnv, "")

	props := NewProperties()
	r := NewResolver(props)

	_, ok := r.ClientID()
	assert.False(t, ok, "client id is absent by default")

	props.Set(ClientIDProperty, "prop-client")
	id, ok := r.ClientID()
	assert.True(t, ok)
	assert.Equal(t, "prop-client", id)

	// picked up without rebuilding the resolver
	t.Setenv(ClientIDEnv, "env-client")
	id, ok = r.ClientID()
	assert.True(t, ok)
	assert.Equal(t, "env-client", id)
}

func TestNewResolver_NilProperties(t *testing.T) {
	t.Setenv(QueueNameEnv, "")

	r := NewResolver(nil)
	assert.Equal(t, DefaultQueueName, r.QueueName())
	_, ok := r.ClientID()
	assert.False(t, ok)
}
