package watcher

import (
	"fmt"
	"io"

	"github.com/autobackup-watch/autobackup/pkg/color"
	"github.com/autobackup-watch/autobackup/pkg/model"
	"github.com/autobackup-watch/autobackup/pkg/pathutil"
)

// WriteStatus prints the tracked files of dir and their versions.
func WriteStatus(w io.Writer, dir string, files []model.TrackedFile) {
	width := 0
	for _, f := range files {
		width = max(width, pathutil.DisplayWidth(f.Name))
	}

	fmt.Fprintf(w, "\n%s\n", color.Header("=== AutoBackupWatch Status ==="))
	fmt.Fprintf(w, "Watching: %s\n", dir)
	fmt.Fprintf(w, "Tracking %d file(s):\n", len(files))
	for _, f := range files {
		fmt.Fprintf(w, "  • %s %s\n", color.FileName(pathutil.PadRight(f.Name, width)), color.Version(f.Version))
	}
	fmt.Fprintf(w, "%s\n\n", color.Header("============================="))
}
