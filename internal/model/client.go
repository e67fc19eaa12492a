// internal/model/client.go
package model

type Client struct {
	ID                 int64  `db:"id" json:"id"`
	PhoneNumber        string `db:"phone_number" json:"phone_number"`
	MobileOperatorCode string `db:"mobile_operator_code" json:"mobile_operator_code"`
	Tag                string `db:"tag" json:"tag"`
}
