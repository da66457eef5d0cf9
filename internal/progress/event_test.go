package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/contact-harvester/internal/extract"
)

func TestEventValidate(t *testing.T) {
	t.Parallel()

	snap := &extract.Session{ID: "s", Status: extract.StatusCompleted}
	ts := time.Unix(10, 0)
	cases := []struct {
		name    string
		evt     Event
		wantErr bool
	}{
		{"start", Event{SessionID: "s", TS: ts, Stage: StageSessionStart, Session: snap}, false},
		{"start without snapshot", Event{SessionID: "s", TS: ts, Stage: StageSessionStart}, true},
		{"platform", Event{SessionID: "s", TS: ts, Stage: StagePlatformDone, Platform: "a"}, false},
		{"progress without platform", Event{SessionID: "s", TS: ts, Stage: StageSessionProgress}, true},
		{"done", Event{SessionID: "s", TS: ts, Stage: StageSessionDone, Status: extract.StatusStopped, Session: snap}, false},
		{"done while running", Event{SessionID: "s", TS: ts, Stage: StageSessionDone, Status: extract.StatusRunning, Session: snap}, true},
		{"missing id", Event{TS: ts, Stage: StageSessionStart, Session: snap}, true},
		{"missing ts", Event{SessionID: "s", Stage: StageSessionStart, Session: snap}, true},
		{"unknown stage", Event{SessionID: "s", TS: ts, Stage: "NOPE"}, true},
		{"negative duration", Event{SessionID: "s", TS: ts, Stage: StagePlatformDone, Platform: "a", Dur: -1}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.evt.Validate()
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}
