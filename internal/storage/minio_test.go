package storage

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestPhotoKey(t *testing.T) {
	owner := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	photo := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	assert.Equal(t,
		"photos/11111111-1111-1111-1111-111111111111/22222222-2222-2222-2222-222222222222.jpg",
		PhotoKey(owner, photo, "vacation.jpg"))

	// Extension follows the upload, including none at all.
	assert.Equal(t,
		"photos/11111111-1111-1111-1111-111111111111/22222222-2222-2222-2222-222222222222.PNG",
		PhotoKey(owner, photo, "scan.PNG"))
	assert.Equal(t,
		"photos/11111111-1111-1111-1111-111111111111/22222222-2222-2222-2222-222222222222",
		PhotoKey(owner, photo, "raw-upload"))
}
