package main

import (
	"fmt"
	"os"

	"github.com/ResearAI/ResearStudio/internal/replay"
)

// Run replays one task's journal.
func (r *ReplayCmd) Run() error {
	if r.Raw {
		return replay.Raw(os.Stdout, r.Root, r.Task)
	}

	rep := replay.New(os.Stdout, r.Verbose)

	if r.Live {
		return rep.ReplayDirLive(r.Root, r.Task)
	}
	if r.NoPager {
		return rep.ReplayDir(r.Root, r.Task)
	}
	return rep.ReplayDirInteractive(r.Root, r.Task)
}

// Run lists the task workspaces under the root.
func (t *TasksCmd) Run() error {
	ids, err := replay.ListTasks(t.Root)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("no tasks found")
		return nil
	}
	for _, id := range ids {
		tr, err := replay.LoadTask(t.Root, id)
		if err != nil {
			fmt.Printf("%s  (unreadable: %v)\n", id, err)
			continue
		}
		fmt.Printf("%s  %-9s  %d events  %s\n", id, tr.Status, len(tr.Events), truncateQuery(tr.Query))
	}
	return nil
}

func truncateQuery(q string) string {
	if len(q) > 60 {
		return q[:57] + "..."
	}
	return q
}
