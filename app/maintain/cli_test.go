package maintain

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    Command
		wantErr string
	}{
		{name: "aggregate", args: []string{"aggregate"}, want: Command{Name: "aggregate"}},
		{name: "force backfill", args: []string{"aggregate", "--force-backfill"}, want: Command{Name: "aggregate", ForceBackfill: true}},
		{name: "backfill with sample", args: []string{"aggregate", "--force-backfill", "--sample", "600000.SH"}, want: Command{Name: "aggregate", ForceBackfill: true, Sample: "600000.SH"}},
		{name: "compress", args: []string{"compress"}, want: Command{Name: "compress"}},
		{name: "reset confirmed", args: []string{"reset", "-yes"}, want: Command{Name: "reset", Yes: true}},
		{name: "status", args: []string{"status"}, want: Command{Name: "status"}},
		{name: "config flag", args: []string{"-config", "prod.yaml", "daemon"}, want: Command{Name: "daemon", ConfigPath: "prod.yaml"}},
		{name: "missing command", args: nil, wantErr: "usage"},
		{name: "unknown command", args: []string{"vacuum"}, wantErr: "unknown command: vacuum"},
		{name: "flag on wrong command", args: []string{"compress", "--yes"}, wantErr: "not defined"},
		{name: "extra args", args: []string{"status", "now"}, wantErr: "unexpected arguments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand(tt.args, "", io.Discard)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCommandDefaultConfig(t *testing.T) {
	got, err := ParseCommand([]string{"status"}, "/etc/tickvault.yaml", io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "/etc/tickvault.yaml", got.ConfigPath)
}
