package schedule

import (
	"github.com/go-playground/validator/v10"
)

// InitValidators registers the struct-level rules of scheduling requests.
func InitValidators(validate *validator.Validate) {
	validate.RegisterStructValidation(slotStructLevelValidation, Slot{})
	validate.RegisterStructValidation(attendanceEditStructLevelValidation, AttendanceEdit{})
}

func slotStructLevelValidation(sl validator.StructLevel) {
	slot := sl.Current().Interface().(Slot)
	if !slot.StartAt.IsZero() && !slot.EndAt.IsZero() && !slot.StartAt.Before(slot.EndAt) {
		sl.ReportError(slot.EndAt, "end_at", "EndAt", "gtfield", "start_at")
	}
	if !slot.OpenAt.IsZero() && !slot.ExpireAt.IsZero() && !slot.OpenAt.Before(slot.ExpireAt) {
		sl.ReportError(slot.ExpireAt, "expire_at", "ExpireAt", "gtfield", "open_at")
	}
}

func attendanceEditStructLevelValidation(sl validator.StructLevel) {
	edit := sl.Current().Interface().(AttendanceEdit)
	if !edit.CheckOut.IsZero() && (edit.CheckIn.IsZero() || !edit.CheckIn.Before(edit.CheckOut)) {
		sl.ReportError(edit.CheckOut, "check_out", "CheckOut", "gtfield", "check_in")
	}
}

func (ne *NewExam) Validate(validate *validator.Validate) error {
	ne.Course = ne.Course.Clean()
	return validate.Struct(ne)
}

func (s *Slot) Validate(validate *validator.Validate) error {
	return validate.Struct(s)
}

func (e *AttendanceEdit) Validate(validate *validator.Validate) error {
	return validate.Struct(e)
}

func (r *OfferResponse) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

func (ev *CardEvent) Validate(validate *validator.Validate) error {
	return validate.Struct(ev)
}
