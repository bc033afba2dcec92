package ui

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/nwp-tools/gribfetch/internal/apperr"
)

// ConfirmClearDir asks the user to confirm that a non-empty output directory
// may be cleared before a run download. Declining or aborting the prompt
// returns apperr.ErrCancelled.
func ConfirmClearDir(dir string) error {
	var ok bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("Output directory %q is not empty", dir)).
			Description("Its contents will be deleted before the download starts.").
			Affirmative("Clear and download").
			Negative("Cancel").
			Value(&ok),
	))

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return apperr.ErrCancelled
		}
		return err
	}
	if !ok {
		return apperr.ErrCancelled
	}
	return nil
}
