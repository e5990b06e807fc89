package hashcode

import (
    "bufio"
    "fmt"
    "io"

    "dronenav/internal/opt"
)

// Writer renders command logs; it satisfies integrations.CommandSink.
type Writer struct{}

func (Writer) WriteCommands(w io.Writer, actions []opt.Action) error {
    return WriteCommands(w, actions)
}

// WriteCommands writes the command count followed by one command per line.
func WriteCommands(w io.Writer, actions []opt.Action) error {
    bw := bufio.NewWriter(w)
    if _, err := fmt.Fprintln(bw, len(actions)); err != nil {
        return err
    }
    for _, a := range actions {
        if _, err := fmt.Fprintln(bw, a.String()); err != nil {
            return err
        }
    }
    return bw.Flush()
}
