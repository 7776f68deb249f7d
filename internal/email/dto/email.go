package dto

import (
	emaildomain "github.com/hykura/mailmind/internal/email/domain"
)

type EmailsResponse struct {
	Emails []*emaildomain.Email `json:"emails"`
	Source emaildomain.Source   `json:"source"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
	Total  int64                `json:"total"`
}

type MarkReadRequest struct {
	Read *bool `json:"read"`
}
