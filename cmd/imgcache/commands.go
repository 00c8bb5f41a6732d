package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/meigma/imgcache"
	"github.com/meigma/imgcache/blobstore"
)

// app holds what every subcommand needs. It is filled in by the root
// command's PersistentPreRunE and released by close once Execute returns.
type app struct {
	cfg      config
	svc      *imgcache.Service
	closer   io.Closer
	newStore func(config) (blobstore.Store, io.Closer, error)
}

// close releases backend connections. It is safe to call more than once.
func (a *app) close() error {
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	return err
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{newStore: newStore}

	root := &cobra.Command{
		Use:           "imgcache",
		Short:         "Publish and fetch images through a tiered local cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	registerFlags(root.PersistentFlags())

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		v, err := newViper(cmd.Root().PersistentFlags())
		if err != nil {
			return err
		}
		if a.cfg, err = loadConfig(v); err != nil {
			return err
		}
		logger, err := newLogger(cmd.ErrOrStderr(), a.cfg.logLevel, a.cfg.logFormat)
		if err != nil {
			return err
		}

		store, closer, err := a.newStore(a.cfg)
		if err != nil {
			return fmt.Errorf("%s backend: %w", a.cfg.backend, err)
		}
		a.closer = closer

		a.svc, err = imgcache.New(a.cfg.cacheDir, store,
			imgcache.WithLogger(logger),
			imgcache.WithMemoryCapacity(a.cfg.memoryCapacity),
			imgcache.WithMaxFetchBytes(a.cfg.maxFetchBytes),
			imgcache.WithSizeCeiling(a.cfg.ceiling),
			imgcache.WithFetchTimeout(a.cfg.fetchTimeout),
			imgcache.WithUploadTimeout(a.cfg.uploadTimeout),
			imgcache.WithFetchConcurrency(a.cfg.concurrency),
		)
		if err != nil {
			return errors.Join(err, a.close())
		}
		return nil
	}

	root.AddCommand(
		newPublishCmd(a),
		newFetchCmd(a),
		newUploadCmd(a),
		newEvictCmd(a),
		newClearCmd(a),
		newStatsCmd(a),
	)
	return root, a
}

func newPublishCmd(a *app) *cobra.Command {
	var ceiling int64
	cmd := &cobra.Command{
		Use:   "publish FILE",
		Short: "Compress an image, cache it and upload it; prints the new ID",
		Long:  "Reads FILE (or stdin when FILE is -), re-encodes it as JPEG under the size ceiling and uploads it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			id, err := a.svc.Publish(cmd.Context(), raw, ceiling)
			if id != "" {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			var upErr *imgcache.UploadError
			if errors.As(err, &upErr) {
				return fmt.Errorf("%w (image is cached locally; retry with: imgcache upload %s)", err, upErr.ID)
			}
			return err
		},
	}
	cmd.Flags().Int64Var(&ceiling, "max-bytes", 0, "size ceiling for this image (0 uses --ceiling)")
	return cmd
}

func newFetchCmd(a *app) *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "fetch ID...",
		Short: "Fetch images by ID",
		Long:  "With a single ID and no --output the image is written to stdout. Otherwise each image is written to OUTPUT/ID.jpg.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 && outDir == "" {
				return errors.New("--output is required when fetching more than one image")
			}

			results := a.svc.FetchBatch(cmd.Context(), args)
			missing := 0
			for i, data := range results {
				if data == nil {
					missing++
					fmt.Fprintf(cmd.ErrOrStderr(), "not found: %s\n", args[i])
					continue
				}
				if outDir == "" {
					if _, err := cmd.OutOrStdout().Write(data); err != nil {
						return err
					}
					continue
				}
				if err := writeImage(outDir, args[i], data); err != nil {
					return err
				}
			}
			if missing > 0 {
				return fmt.Errorf("%d of %d images not found", missing, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "output", "o", "", "directory to write images to")
	return cmd
}

func newUploadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "upload ID...",
		Short: "Retry uploading locally cached images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var errs []error
			for _, id := range args {
				if err := a.svc.Upload(cmd.Context(), id); err != nil {
					errs = append(errs, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s\n", id)
			}
			return errors.Join(errs...)
		},
	}
}

func newEvictCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "evict ID...",
		Short: "Remove images from the local cache",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			var errs []error
			for _, id := range args {
				errs = append(errs, a.svc.Evict(id))
			}
			return errors.Join(errs...)
		},
	}
}

func newClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the local cache",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return a.svc.Clear()
		},
	}
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show local cache usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st := a.svc.Stats()
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "dir:          %s\n", a.svc.Dir())
			fmt.Fprintf(w, "backend:      %s\n", a.cfg.backend)
			fmt.Fprintf(w, "memory:       %d/%d\n", st.MemoryLen, st.MemoryCapacity)
			fmt.Fprintf(w, "disk entries: %d\n", st.DiskEntries)
			fmt.Fprintf(w, "disk bytes:   %d\n", st.DiskBytes)
			return nil
		},
	}
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func writeImage(dir, id string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	id, err := imgcache.NormalizeID(id)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, id+".jpg"), data, 0o644) //nolint:gosec // output is user-facing
}
