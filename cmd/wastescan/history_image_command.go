package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"wastescan/internal/prediction"
)

const defaultImageName = "scan.jpg"

type imageExport struct {
	Index       int    `json:"index"`
	Path        string `json:"path"`
	ContentType string `json:"content_type,omitempty"`
	Bytes       int    `json:"bytes"`
}

func newHistoryImageCommand(ctx *commandContext) *cobra.Command {
	var outPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "image <index>",
		Short: "Save the image of a scan (index as shown by 'history list')",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(strings.TrimSpace(args[0]))
			if err != nil || index < 1 {
				return fmt.Errorf("index must be a positive whole number, got %q", args[0])
			}
			return ctx.withApp(cmd, func(a *app) error {
				records := a.history.Snapshot()
				if index > len(records) {
					return fmt.Errorf("no scan at index %d (history holds %d)", index, len(records))
				}
				rec := records[index-1]

				contentType, data, err := scanImage(rec)
				if err != nil {
					return err
				}
				target, err := imageTarget(outPath, rec.Filename)
				if err != nil {
					return err
				}
				if !overwrite {
					if _, statErr := os.Stat(target); statErr == nil {
						return fmt.Errorf("%s already exists (use --overwrite to replace it)", target)
					} else if !errors.Is(statErr, fs.ErrNotExist) {
						return fmt.Errorf("check %s: %w", target, statErr)
					}
				}
				if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
					return fmt.Errorf("create output directory: %w", err)
				}
				if err := os.WriteFile(target, data, 0o644); err != nil {
					return fmt.Errorf("write image: %w", err)
				}

				result := imageExport{Index: index, Path: target, ContentType: contentType, Bytes: len(data)}
				if ctx.jsonOutput() {
					return writeJSON(cmd, result)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%d bytes)\n", target, len(data))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file or existing directory (default: the scan's file name in the current directory)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite an existing file")
	return cmd
}

// scanImage decodes a stored data URL. Remote references have no local bytes.
func scanImage(rec prediction.Record) (string, []byte, error) {
	image := strings.TrimSpace(rec.Image)
	if image == "" {
		return "", nil, errors.New("scan has no stored image")
	}
	if !strings.HasPrefix(image, "data:") {
		return "", nil, fmt.Errorf("scan image is a remote reference (%s), not stored locally", image)
	}
	contentType, data, err := prediction.DecodeDataURL(image)
	if err != nil {
		return "", nil, fmt.Errorf("decode scan image: %w", err)
	}
	return contentType, data, nil
}

// imageTarget resolves --out. A directory receives the scan's file name;
// only the base name of the stored file name is used.
func imageTarget(outPath, filename string) (string, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = defaultImageName
	}
	outPath = strings.TrimSpace(outPath)
	if outPath == "" {
		return name, nil
	}
	info, err := os.Stat(outPath)
	switch {
	case err == nil && info.IsDir():
		return filepath.Join(outPath, name), nil
	case err == nil, errors.Is(err, fs.ErrNotExist):
		return outPath, nil
	default:
		return "", fmt.Errorf("check output path: %w", err)
	}
}
