package api

import (
	log "github.com/sirupsen/logrus"

	"github.com/sidkik/sftpsync/pkg/config"
	"github.com/sidkik/sftpsync/pkg/errors"
	"github.com/sidkik/sftpsync/pkg/sync"
)

// runTask runs the sync for a task, and records the outcome. Configs that
// fail validation, and remotes that can't be reached, fail the task before
// it starts.
func (s *Server) runTask(id string, cfg config.Config) {
	taskLog := log.WithField("taskID", id)

	stats, err := s.sync(id, cfg, taskLog)
	if err != nil {
		taskLog.WithError(err).Error("Sync task failed")
	}

	if err := s.tasks.Finish(id, stats, err); err != nil {
		taskLog.WithError(err).Error("Failed to record task result")
	}
}

func (s *Server) sync(id string, cfg config.Config, taskLog log.FieldLogger) (sync.Stats, error) {
	if err := cfg.Validate(); err != nil {
		return sync.Stats{}, err
	}

	sess, err := s.open(cfg.Connection)
	if err != nil {
		return sync.Stats{}, errors.WithContext(err, "connect")
	}
	defer func() {
		if err := sess.Close(); err != nil {
			taskLog.WithError(err).Warn("Failed to close session")
		}
	}()

	if err := s.tasks.Start(id); err != nil {
		return sync.Stats{}, errors.WithContext(err, "start task")
	}

	syncer := sync.Syncer{
		Options: cfg.SyncOptions(),
		Remote:  sess,
		Log:     taskLog,
	}
	report, err := syncer.Run(s.ctx)
	return report.Stats, err
}
