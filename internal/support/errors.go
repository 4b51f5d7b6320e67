package support

import (
	"errors"

	"github.com/npezzotti/go-supportchat/internal/database"
)

var (
	ErrNotFound        = database.ErrNotFound
	ErrAlreadyAssigned = database.ErrAlreadyAssigned
	ErrRoomClosed      = database.ErrRoomClosed

	ErrForbidden    = errors.New("forbidden")
	ErrNotStaff     = errors.New("only support staff can perform this action")
	ErrEmptyMessage = errors.New("message cannot be empty")
)
