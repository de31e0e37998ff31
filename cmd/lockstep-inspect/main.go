// Command lockstep-inspect prints a replay file's header and a count of
// each record type it contains. With -watch, it re-prints on every
// write to the file instead of exiting after one pass, for iterating on
// a recording host without restarting the inspector each time.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/lockstepgg/lockstep-engine/internal/replay"
	"github.com/lockstepgg/lockstep-engine/internal/replaywatch"
)

func printSummary(r *replay.Reader) {
	fmt.Printf("version:             %d\n", r.Header.Version)
	fmt.Printf("buildId:             %s\n", r.Header.BuildID)
	fmt.Printf("playerId:            %d\n", r.Header.PlayerID)
	fmt.Printf("gameId:              %s\n", r.Header.GameID)
	fmt.Printf("initializationData:  %d bytes\n", len(r.Header.InitializationData))
	fmt.Printf("records:             %d\n", r.Len())

	counts := make(map[replay.RecordType]int)
	for _, rec := range r.Drain(1<<62, false) {
		counts[rec.Header.Type]++
	}

	fmt.Println("by type:")
	fmt.Printf("  loadSnapshot:     %d\n", counts[replay.RecordLoadSnapshot])
	fmt.Printf("  addCommand:       %d\n", counts[replay.RecordAddCommand])
	fmt.Printf("  executeCommand:   %d\n", counts[replay.RecordExecuteCommand])
	fmt.Printf("  frame:            %d\n", counts[replay.RecordFrame])
	fmt.Printf("  updatePlayerList: %d\n", counts[replay.RecordUpdatePlayerList])
}

func inspect(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r, err := replay.NewReader(f)
	if err != nil {
		return err
	}
	printSummary(r)
	return nil
}

func watch(path string) error {
	w := replaywatch.New(path, 0)
	w.OnReload = func(r *replay.Reader, err error) {
		if err != nil {
			fmt.Fprintf(os.Stderr, "lockstep-inspect: %v\n", err)
			return
		}
		fmt.Println("---")
		printSummary(r)
	}
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()
	select {} // run until killed
}

func main() {
	path := flag.String("file", "", "replay file to inspect")
	watchFlag := flag.Bool("watch", false, "re-print on every write to the file instead of exiting")
	flag.Parse()

	if *path == "" {
		flag.Usage()
		os.Exit(2)
	}

	var err error
	if *watchFlag {
		err = watch(*path)
	} else {
		err = inspect(*path)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "lockstep-inspect: %v\n", err)
		os.Exit(1)
	}
}
