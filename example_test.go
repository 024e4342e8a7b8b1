package ferry

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/fileferry/ferry/ferrytypes"
	"github.com/fileferry/ferry/session"
	"github.com/fileferry/ferry/source"
	"github.com/fileferry/ferry/strategy"
)

// ExampleEngine_Execute moves one small object through the full lifecycle
// using in-memory collaborators.
func ExampleEngine_Execute() {
	payload := []byte("region,revenue\neu-west-1,1204\n")
	src := &memSource{data: payload, etag: etagFor(payload), contentType: "text/csv"}

	sessions, err := session.NewManager(
		session.NewMemoryStore(),
		session.NewStaticIdentity(ferrytypes.Credentials{AccessKeyID: "AKIDEXAMPLE"}),
	)
	if err != nil {
		fmt.Println("manager:", err)
		return
	}
	learner, err := strategy.NewLearner(strategy.NewMemoryHistory())
	if err != nil {
		fmt.Println("learner:", err)
		return
	}

	sinks := &sinkRig{}
	engine, err := New(
		func(context.Context, ferrytypes.Credentials) (source.Source, error) { return src, nil },
		sessions,
		learner,
		WithSinkFactory(sinks.factory),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		fmt.Println("engine:", err)
		return
	}

	result, err := engine.Execute(context.Background(), ferrytypes.TransferRequest{
		Source: ferrytypes.ObjectRef{Bucket: "data-lake", Key: "reports/q1.csv"},
		Dest: ferrytypes.Destination{
			Protocol: ferrytypes.ProtocolSFTP,
			Host:     "drop.example.com",
			Path:     "exports/q1.csv",
			Username: "deliver",
			Password: "hunter2",
		},
		RequesterID: "analyst-7",
		RequestID:   "REQ-9000",
	})
	if err != nil {
		fmt.Println("transfer:", err)
		return
	}

	fmt.Printf("%s %d bytes in %d attempt(s)\n", result.State, result.BytesTransferred, result.Attempts)
	// Output: completed 30 bytes in 1 attempt(s)
}
