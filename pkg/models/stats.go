package models

// Stats represents ledger statistics for the status command.
type Stats struct {
	Albums        int64
	UploadedFiles int64
	UploadedSize  int64
}
