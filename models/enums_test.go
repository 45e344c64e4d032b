package models_test

import (
	"testing"

	"bitbucket.org/craftworks/bizmate_backend/models"
)

func TestParseJobStage(t *testing.T) {
	for _, valid := range []string{"Booked", "InProgress", "Completed", "Canceled"} {
		stage, err := models.ParseJobStage(valid)
		if err != nil {
			t.Fatalf("ParseJobStage(%q): %v", valid, err)
		}
		if string(stage) != valid {
			t.Fatalf("stage = %q; want %q", stage, valid)
		}
	}
	for _, invalid := range []string{"", "booked", "Done", "IN_PROGRESS"} {
		if _, err := models.ParseJobStage(invalid); err == nil {
			t.Fatalf("ParseJobStage(%q) should fail", invalid)
		}
	}
}
