package books

type ListBooksQuery struct {
	Limit     int  `query:"limit" json:"limit,omitempty" default:"10" validate:"min=1,max=100"`
	Offset    int  `query:"offset" json:"offset,omitempty" validate:"min=0"`
	LibraryID *int `query:"library_id" json:"library_id,omitempty"`
}

type UpdateBookPayload struct {
	Title  *string `json:"title,omitempty" validate:"omitempty,max=500"`
	Author *string `json:"author,omitempty" validate:"omitempty,max=500"`
	Series *string `json:"series,omitempty" validate:"omitempty,max=500"`
}

type UpdateFilePayload struct {
	Exclude          *bool `json:"exclude,omitempty"`
	ManuallyVerified *bool `json:"manually_verified,omitempty"`
}
