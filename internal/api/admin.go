package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/ademuri/scrobble-server/internal/apperr"
	"github.com/ademuri/scrobble-server/internal/importer"
	"github.com/ademuri/scrobble-server/internal/query"
	"github.com/ademuri/scrobble-server/internal/rules"
	"github.com/ademuri/scrobble-server/internal/store"
)

func required(p query.Params, key string) (string, error) {
	v, ok := p.Get(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", apperr.Malformedf(key, v, "parameter is required")
	}
	return strings.TrimSpace(v), nil
}

func requiredInt(p query.Params, key string) (int64, error) {
	v, err := required(p, key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, apperr.Malformed(key, v, err)
	}
	return n, nil
}

// intList accepts repeated values as well as comma separated lists,
// optionally wrapped in brackets.
func intList(p query.Params, key string) ([]int64, error) {
	var ids []int64
	for _, v := range p.All(key) {
		for _, part := range strings.Split(strings.Trim(v, "[] "), ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			n, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, apperr.Malformed(key, v, err)
			}
			ids = append(ids, n)
		}
	}
	if len(ids) == 0 {
		return nil, apperr.Malformedf(key, "", "parameter is required")
	}
	return ids, nil
}

func (s *Server) updateSettings(r *request) (any, error) {
	if err := s.settings.Update(r.params.Without("key").Map()); err != nil {
		return nil, err
	}
	return success(nil), nil
}

func (s *Server) updateKeys(r *request) (any, error) {
	if err := s.keys.Update(r.params.Without("key").Map()); err != nil {
		return nil, err
	}
	return success(nil), nil
}

func (s *Server) deleteScrobble(r *request) (any, error) {
	ts, err := requiredInt(r.params, "timestamp")
	if err != nil {
		return nil, err
	}
	if err := s.store.RemoveScrobble(r.ctx(), ts); err != nil {
		return nil, err
	}
	return success(Envelope{"desc": "Scrobble was deleted!"}), nil
}

func (s *Server) editArtist(r *request) (any, error) {
	id, err := requiredInt(r.params, "id")
	if err != nil {
		return nil, err
	}
	name, err := required(r.params, "name")
	if err != nil {
		return nil, err
	}
	if err := s.store.EditArtist(r.ctx(), id, name); err != nil {
		return nil, err
	}
	return success(nil), nil
}

func (s *Server) editTrack(r *request) (any, error) {
	id, err := requiredInt(r.params, "id")
	if err != nil {
		return nil, err
	}
	title, err := required(r.params, "title")
	if err != nil {
		return nil, err
	}
	if err := s.store.EditTrack(r.ctx(), id, title); err != nil {
		return nil, err
	}
	return success(nil), nil
}

func (s *Server) mergeTracks(r *request) (any, error) {
	target, err := requiredInt(r.params, "target_id")
	if err != nil {
		return nil, err
	}
	sources, err := intList(r.params, "source_ids")
	if err != nil {
		return nil, err
	}
	if err := s.store.MergeTracks(r.ctx(), target, sources); err != nil {
		return nil, err
	}
	return success(nil), nil
}

func (s *Server) mergeArtists(r *request) (any, error) {
	target, err := requiredInt(r.params, "target_id")
	if err != nil {
		return nil, err
	}
	sources, err := intList(r.params, "source_ids")
	if err != nil {
		return nil, err
	}
	if err := s.store.MergeArtists(r.ctx(), target, sources); err != nil {
		return nil, err
	}
	return success(nil), nil
}

func (s *Server) reparseScrobble(r *request) (any, error) {
	ts, err := requiredInt(r.params, "timestamp")
	if err != nil {
		return nil, err
	}
	sc, err := s.store.ReparseScrobble(r.ctx(), ts)
	if err != nil {
		return nil, err
	}
	if sc == nil {
		return Envelope{"status": "no_operation", "desc": "The scrobble was not changed."}, nil
	}
	return success(Envelope{"desc": "Scrobble was reparsed!", "scrobble": sc}), nil
}

func (s *Server) rebuild(r *request) (any, error) {
	logger().Info("Database rebuild initiated")
	if err := s.store.Rebuild(r.ctx()); err != nil {
		return nil, err
	}
	return success(nil), nil
}

func (s *Server) importLastFM(r *request) (any, error) {
	if s.importer == nil {
		return nil, &apperr.StatusError{Status: http.StatusNotImplemented, Err: errors.New("last.fm import is not configured")}
	}
	user, err := required(r.params, "identifier")
	if err != nil {
		return nil, err
	}

	ctx := context.WithoutCancel(r.ctx())
	s.store.Background("import", func() error {
		res, err := s.importer.Import(ctx, user, importer.Options{})
		if err != nil {
			return err
		}
		logger().Infof("Imported %s new scrobbles of last.fm user %s", humanize.Comma(int64(res.Added)), user)
		return nil
	})
	return success(Envelope{"desc": "Import started"}), nil
}

func (s *Server) importRules(r *request) (any, error) {
	filename, err := required(r.params, "filename")
	if err != nil {
		return nil, err
	}
	dir := s.cfg.RulesDir()
	if r.params.Has("remove") {
		err = rules.Deactivate(dir, filename)
	} else {
		err = rules.Activate(dir, filename)
	}
	if err != nil {
		return nil, err
	}
	if err := rules.Apply(r.ctx(), dir, s.store); err != nil {
		return nil, err
	}
	return success(nil), nil
}

func (s *Server) export(r *request) (any, error) {
	var buf bytes.Buffer
	if err := s.store.Export(r.ctx(), &buf); err != nil {
		return nil, err
	}
	name := store.ExportName("scrobble-server_export", "json", s.store.Now())
	r.c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	r.c.Data(http.StatusOK, "application/json", buf.Bytes())
	return nil, nil
}

func (s *Server) backup(r *request) (any, error) {
	tmp, err := os.MkdirTemp("", "scrobble-server-backup")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmp)

	archive := filepath.Join(tmp, "backup.zip")
	if err := writeBackup(r.ctx(), s.store, s.cfg, tmp, archive); err != nil {
		return nil, err
	}
	r.c.FileAttachment(archive, store.ExportName("scrobble-server_backup", "zip", s.store.Now()))
	return nil, nil
}
