package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ytmusicdl/config"
	"ytmusicdl/types"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
)

// Download runs one job in-process and renders its progress as a bar.
// Interrupting the command cancels the job and waits for it to wind down.
func (r *Runner) Download(ctx context.Context, cmd *cli.Command) error {
	rawURL := cmd.Args().First()
	if rawURL == "" {
		return fmt.Errorf("%w: a YouTube Music URL is required", ErrMissingArgument)
	}

	cfg, err := config.LoadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	if lib := cmd.String("library"); lib != "" {
		cfg.Paths.LibraryDir = lib
	}

	// the run is cancelled through the token, not the parent context
	svc, err := NewServices(context.Background(), cfg, r.stderr)
	if err != nil {
		return err
	}
	defer svc.Close()

	sub := svc.Bus.Subscribe()
	defer sub.Close()

	format := cmd.String("format")
	if format == "" {
		format = cfg.Audio.Format
	}
	job, err := svc.Executor.Submit(rawURL, format)
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(r.stdout),
		progressbar.OptionSetDescription("Queued"),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionThrottle(100*time.Millisecond),
	)

	final, err := r.follow(ctx, svc, job.ID, sub.Events(), func(j types.Job) {
		if j.Message != "" {
			bar.Describe(j.Message)
		}
		_ = bar.Set(int(j.Progress))
	})
	if err != nil {
		return err
	}
	if final.Status == types.JobStatusCompleted {
		_ = bar.Finish()
	}
	fmt.Fprintln(r.stdout)
	return r.report(final)
}

// follow consumes job events until jobID is terminal. If the feed drops the
// subscriber, it waits for the executor and reads the final state from the store.
func (r *Runner) follow(ctx context.Context, svc *Services, jobID string, events <-chan types.Event, update func(types.Job)) (types.Job, error) {
	done := ctx.Done()
	for {
		select {
		case <-done:
			svc.Logger.Warn("interrupted, cancelling download", "job", jobID)
			if err := svc.Executor.Cancel(jobID); err != nil {
				return types.Job{}, err
			}
			done = nil

		case ev, ok := <-events:
			if !ok {
				if err := svc.Executor.Wait(context.Background()); err != nil {
					return types.Job{}, err
				}
				return svc.Store.Get(jobID)
			}
			if ev.Job == nil || ev.Job.ID != jobID {
				continue
			}
			update(*ev.Job)
			if ev.Job.Status.IsTerminal() {
				return *ev.Job, nil
			}
		}
	}
}

func (r *Runner) report(job types.Job) error {
	switch job.Status {
	case types.JobStatusCompleted:
		if job.Result != nil {
			fmt.Fprintf(r.stdout, "Imported %d tracks into %s\n", job.Result.TrackCount, job.Result.Destination)
		}
		return nil
	case types.JobStatusCancelled:
		return errors.New("download cancelled")
	default:
		return fmt.Errorf("download failed: %s", job.Error)
	}
}
