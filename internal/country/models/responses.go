package models

const (
	MsgInserted = "Data inserted successfully"
	MsgUpdated  = "Country updated successfully"
	MsgDeleted  = "Country deleted successfully"
)

// MessageResponse is the body of every successful mutation.
type MessageResponse struct {
	Message string `json:"message"`
}
