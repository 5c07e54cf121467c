package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tuannm99/novaproto/pkg/typedesc"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		hexInput string
		count    int
		root     int
	)
	cmd := &cobra.Command{
		Use:   "descdump [file]",
		Short: "Decode a raw type descriptor stream and print it.",
		Long: "Reads a descriptor stream from a file, stdin (\"-\") or --hex and prints one line\n" +
			"per entry followed by the resolved root type.",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			stream, err := readStream(cmd.InOrStdin(), args, hexInput)
			if err != nil {
				return err
			}
			return dump(cmd.OutOrStdout(), stream, count, root)
		},
	}
	f := cmd.Flags()
	f.StringVar(&hexInput, "hex", "", "stream as a hex string")
	f.IntVar(&count, "count", -1, "expected descriptor count (-1 skips the check)")
	f.IntVar(&root, "root", -1, "position of the root type (-1 means the last entry)")
	return cmd
}

func readStream(stdin io.Reader, args []string, hexInput string) ([]byte, error) {
	switch {
	case hexInput != "":
		clean := strings.Join(strings.Fields(hexInput), "")
		clean = strings.TrimPrefix(clean, "0x")
		b, err := hex.DecodeString(clean)
		if err != nil {
			return nil, fmt.Errorf("decode hex: %w", err)
		}
		return b, nil
	case len(args) == 0 || args[0] == "-":
		return io.ReadAll(stdin)
	default:
		return os.ReadFile(args[0])
	}
}

func dump(w io.Writer, stream []byte, count, root int) error {
	descs, err := typedesc.Decode(stream, count)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "set id: %s\n", typedesc.SetID(stream))
	fmt.Fprintf(w, "entries: %d, bytes: %d\n", len(descs), len(stream))
	fmt.Fprint(w, typedesc.Format(descs))
	if len(descs) == 0 {
		return nil
	}

	if root < 0 {
		root = len(descs) - 1
	}
	if root >= len(descs) {
		return fmt.Errorf("root %d outside %d entries", root, len(descs))
	}
	t, err := typedesc.Resolve(descs, typedesc.Position(root))
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "root %d: %s\n", root, t)
	return nil
}
