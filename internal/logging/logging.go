// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	log "github.com/sirupsen/logrus"
)

// Setup installs the nested formatter and sets the level by name.
func Setup(level string, out io.Writer) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	log.SetLevel(lvl)
	log.SetFormatter(&nested.Formatter{
		FieldsOrder:     []string{"component", "route", "status"},
		TimestampFormat: time.DateTime,
		HideKeys:        false,
		NoColors:        true,
	})
	if out != nil {
		log.SetOutput(out)
	}
	return nil
}

// Component returns a logger tagged with the component name.
func Component(name string) *log.Entry {
	return log.WithField("component", name)
}
