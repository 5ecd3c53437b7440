package document

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "already a file uri", in: "file:///home/user/main.go", want: "file:///home/user/main.go"},
		{name: "bare absolute path", in: "/home/user/main.go", want: "file:///home/user/main.go"},
		{name: "strips fragment", in: "file:///a/b.go#L10", want: "file:///a/b.go"},
		{name: "uppercases windows drive letter", in: "file:///c:/src/main.go", want: "file:///C:/src/main.go"},
		{name: "idempotent on already-uppercase drive", in: "file:///C:/src/main.go", want: "file:///C:/src/main.go"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeURI(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeURI_Rejects(t *testing.T) {
	t.Parallel()

	_, err := NormalizeURI("")
	require.Error(t, err)

	_, err = NormalizeURI("http://example.com/a.go")
	require.Error(t, err)
	var invalid *InvalidURIError
	require.ErrorAs(t, err, &invalid)
}

func TestNormalizeURI_SameFileSameKey(t *testing.T) {
	t.Parallel()

	a, err := NormalizeURI("file:///c:/src/main.go")
	require.NoError(t, err)
	b, err := NormalizeURI("file:///C:/src/main.go")
	require.NoError(t, err)
	require.Equal(t, a, b)
}
