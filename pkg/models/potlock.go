package models

import (
	"math"

	"github.com/ericvolp12/eventsink/pkg/normalize"
)

// Potlock amounts are yoctoNEAR integers; donated_at_ms is milliseconds since the epoch.

type PotlockDonation struct {
	DonationID  uint64          `json:"donation_id"`
	DonorID     string          `json:"donor_id"`
	TotalAmount normalize.Uint  `json:"total_amount"`
	Message     *string         `json:"message"`
	DonatedAtMs uint64          `json:"donated_at_ms"`
	ProjectID   string          `json:"project_id"`
	ProtocolFee normalize.Uint  `json:"protocol_fee"`
	ReferrerID  *string         `json:"referrer_id"`
	ReferrerFee *normalize.Uint `json:"referrer_fee"`
}

func (e PotlockDonation) Validate() error {
	switch {
	case e.DonorID == "":
		return missing("donor_id")
	case !e.TotalAmount.IsSet():
		return missing("total_amount")
	case e.DonatedAtMs == 0:
		return missing("donated_at_ms")
	case e.DonationID > math.MaxInt64:
		return outOfRange("donation_id")
	case e.ProjectID == "":
		return missing("project_id")
	case !e.ProtocolFee.IsSet():
		return missing("protocol_fee")
	}
	return checkMillis("donated_at_ms", e.DonatedAtMs)
}

type PotlockPotProjectDonation struct {
	DonationID  uint64          `json:"donation_id"`
	PotID       string          `json:"pot_id"`
	DonorID     string          `json:"donor_id"`
	TotalAmount normalize.Uint  `json:"total_amount"`
	NetAmount   normalize.Uint  `json:"net_amount"`
	Message     *string         `json:"message"`
	DonatedAtMs uint64          `json:"donated_at_ms"`
	ProjectID   string          `json:"project_id"`
	ReferrerID  *string         `json:"referrer_id"`
	ReferrerFee *normalize.Uint `json:"referrer_fee"`
	ProtocolFee normalize.Uint  `json:"protocol_fee"`
	ChefID      *string         `json:"chef_id"`
	ChefFee     *normalize.Uint `json:"chef_fee"`
}

func (e PotlockPotProjectDonation) Validate() error {
	switch {
	case e.PotID == "":
		return missing("pot_id")
	case e.DonorID == "":
		return missing("donor_id")
	case !e.TotalAmount.IsSet():
		return missing("total_amount")
	case !e.NetAmount.IsSet():
		return missing("net_amount")
	case e.DonatedAtMs == 0:
		return missing("donated_at_ms")
	case e.DonationID > math.MaxInt64:
		return outOfRange("donation_id")
	case e.ProjectID == "":
		return missing("project_id")
	case !e.ProtocolFee.IsSet():
		return missing("protocol_fee")
	}
	return checkMillis("donated_at_ms", e.DonatedAtMs)
}

// PotlockPotDonation is a donation to a pot's matching pool rather than to a project.
type PotlockPotDonation struct {
	DonationID  uint64          `json:"donation_id"`
	PotID       string          `json:"pot_id"`
	DonorID     string          `json:"donor_id"`
	TotalAmount normalize.Uint  `json:"total_amount"`
	NetAmount   normalize.Uint  `json:"net_amount"`
	Message     *string         `json:"message"`
	DonatedAtMs uint64          `json:"donated_at_ms"`
	ReferrerID  *string         `json:"referrer_id"`
	ReferrerFee *normalize.Uint `json:"referrer_fee"`
	ProtocolFee normalize.Uint  `json:"protocol_fee"`
	ChefID      *string         `json:"chef_id"`
	ChefFee     *normalize.Uint `json:"chef_fee"`
}

func (e PotlockPotDonation) Validate() error {
	switch {
	case e.PotID == "":
		return missing("pot_id")
	case e.DonorID == "":
		return missing("donor_id")
	case !e.TotalAmount.IsSet():
		return missing("total_amount")
	case !e.NetAmount.IsSet():
		return missing("net_amount")
	case e.DonatedAtMs == 0:
		return missing("donated_at_ms")
	case e.DonationID > math.MaxInt64:
		return outOfRange("donation_id")
	case !e.ProtocolFee.IsSet():
		return missing("protocol_fee")
	}
	return checkMillis("donated_at_ms", e.DonatedAtMs)
}
