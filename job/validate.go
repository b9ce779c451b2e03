package job

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"mediaqueue/models"
)

// ErrInvalidJob marks a job rejected before processing started.
var ErrInvalidJob = errors.New("invalid job")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that job carries everything a conversion needs: a
// non-empty buffer, MIME type, upload kind and owner, plus the record
// identifier, output name and format.
func Validate(job *models.ConversionJob) error {
	if job == nil {
		return fmt.Errorf("%w: nil job", ErrInvalidJob)
	}
	if err := validate.Struct(job); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: field %s failed %q", ErrInvalidJob, verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	return nil
}
