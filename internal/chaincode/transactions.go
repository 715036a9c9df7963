package chaincode

import (
	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	escrowmodels "rotrust/internal/escrow/models"
	escrowservice "rotrust/internal/escrow/service"
	propertymodels "rotrust/internal/property/models"
	propertyservice "rotrust/internal/property/service"
	"rotrust/internal/query"
	transfermodels "rotrust/internal/transfer/models"
	transferservice "rotrust/internal/transfer/service"
	id "rotrust/pkg/domain"
)

// RegisterProperty registers a property. detailsJSON holds the property
// details document.
func (c *Contract) RegisterProperty(tctx contractapi.TransactionContextInterface, propertyID, address, ownerID, detailsJSON string) (string, error) {
	inv, err := c.begin(tctx)
	if err != nil {
		return "", err
	}
	var details propertymodels.Details
	if err := decodeArg("details", detailsJSON, &details); err != nil {
		return "", reject(err)
	}
	return respond(inv.properties.RegisterProperty(inv.ctx, propertyservice.RegisterCommand{
		ID:      id.PropertyID(propertyID),
		Address: address,
		OwnerID: id.PartyID(ownerID),
		Details: details,
	}))
}

func (c *Contract) GetProperty(tctx contractapi.TransactionContextInterface, propertyID string) (string, error) {
	inv, err := c.begin(tctx)
	if err != nil {
		return "", err
	}
	p, version, err := inv.properties.GetProperty(inv.ctx, id.PropertyID(propertyID))
	if err != nil {
		return "", reject(err)
	}
	return respond(versioned{Value: p, Version: uint64(version)}, nil)
}

func (c *Contract) GetPropertyHistory(tctx contractapi.TransactionContextInterface, propertyID string) (string, error) {
	inv, err := c.begin(tctx)
	if err != nil {
		return "", err
	}
	return respond(inv.properties.GetHistory(inv.ctx, id.PropertyID(propertyID)))
}

// UpdatePropertyDetails applies a partial details update. Absent fields are
// left unchanged.
func (c *Contract) UpdatePropertyDetails(tctx contractapi.TransactionContextInterface, propertyID, patchJSON string) (string, error) {
	inv, err := c.begin(tctx)
	if err != nil {
		return "", err
	}
	var patch propertymodels.DetailsPatch
	if err := decodeArg("patch", patchJSON, &patch); err != nil {
		return "", reject(err)
	}
	return respond(inv.properties.UpdateDetails(inv.ctx, id.PropertyID(propertyID), patch))
}

func (c *Contract) UpdatePropertyStatus(tctx contractapi.TransactionContextInterface, propertyID, status string) (string, error) {
	inv, err := c.begin(tctx)
	if err != nil {
		return "", err
	}
	return respond(inv.properties.UpdateStatus(inv.ctx, id.PropertyID(propertyID), propertymodels.Status(status)))
}

// ApplyOwnershipTransfer moves ownership outside any escrow. The transfer is
// rejected unless expectedOwner still owns the property.
func (c *Contract) ApplyOwnershipTransfer(tctx contractapi.TransactionContextInterface, propertyID, expectedOwner, newOwner, price string) (string, error) {
	inv, err := c.begin(tctx)
	if err != nil {
		return "", err
	}
	amount, err := id.ParseAmount("price", price)
	if err != nil {
		return "", reject(err)
	}
	return respond(inv.properties.ApplyOwnershipTransfer(inv.ctx, propertyservice.DirectTransferCommand{
		PropertyID:    id.PropertyID(propertyID),
		ExpectedOwner: id.PartyID(expectedOwner),
		NewOwner:      id.PartyID(newOwner),
		Price:         amount,
	}))
}

func (c *Contract) CreateTransfer(tctx contractapi.TransactionContextInterface, transferID, propertyID, sellerID, buyerID, price, paymentMethod, notes string) (string, error) {
	inv, err := c.begin(tctx)
	if err != nil {
		return "", err
	}
	amount, err := id.ParseAmount("price", price)
	if err != nil {
		return "", reject(err)
	}
	return respond(inv.transfers.CreateTransfer(inv.ctx, transferservice.CreateCommand{
		ID:            id.TransferID(transferID),
		PropertyID:    id.PropertyID(propertyID),
		SellerID:      id.PartyID(sellerID),
		BuyerID:       id.PartyID(buyerID),
		Price:         amount,
		PaymentMethod: transfermodels.PaymentMethod(paymentMethod),
		Notes:         notes,
	}))
}

func (c *Contract) CancelTransfer(tctx contractapi.TransactionContextInterface, transferID, reason string) (string, error) {
	inv, err := c.begin(tctx)
	if err != nil {
		return "", err
	}
	return respond(inv.transfers.CancelTransfer(inv.ctx, id.TransferID(transferID), reason))
}

func (c *Contract) GetTransfer(tctx contractapi.TransactionContextInterface, transferID string) (string, error) {
	inv, err := c.begin(tctx)
	if err != nil {
		return "", err
	}
	t, version, err := inv.transfers.GetTransfer(inv.ctx, id.TransferID(transferID))
	if err != nil {
		return "", reject(err)
	}
	return respond(versioned{Value: t, Version: uint64(version)}, nil)
}

// CreateEscrow opens an escrow for a pending transfer. conditionsJSON is an
// array of condition declarations.
func (c *Contract) CreateEscrow(tctx contractapi.TransactionContextInterface, escrowID, transferID, propertyID, sellerID, buyerID, price, conditionsJSON string) (string, error) {
	inv, err := c.begin(tctx)
	if err != nil {
		return "", err
	}
	amount, err := id.ParseAmount("price", price)
	if err != nil {
		return "", reject(err)
	}
	var conditions []escrowmodels.Condition
	if err := decodeArg("conditions", conditionsJSON, &conditions); err != nil {
		return "", reject(err)
	}
	return respond(inv.escrows.CreateEscrow(inv.ctx, escrowservice.CreateCommand{
		ID:         id.EscrowID(escrowID),
		TransferID: id.TransferID(transferID),
		PropertyID: id.PropertyID(propertyID),
		SellerID:   id.PartyID(sellerID),
		BuyerID:    id.PartyID(buyerID),
		Price:      amount,
		Conditions: conditions,
	}))
}

func (c *Contract) AddPayment(tctx contractapi.TransactionContextInterface, escrowID, paymentID, amount, method, payerID, reference string) (string, error) {
	inv, err := c.begin(tctx)
	if err != nil {
		return "", err
	}
	value, err := id.ParseAmount("amount", amount)
	if err != nil {
		return "", reject(err)
	}
	return respond(inv.escrows.AddPayment(inv.ctx, id.EscrowID(escrowID), escrowservice.PaymentCommand{
		PaymentID: paymentID,
		Amount:    value,
		Method:    transfermodels.PaymentMethod(method),
		PayerID:   id.PartyID(payerID),
		Reference: reference,
	}))
}

// documentMetadata is the optional JSON argument of AddDocument.
type documentMetadata struct {
	IssuingAuthority string            `json:"issuing_authority"`
	Metadata         map[string]string `json:"metadata"`
}

func (c *Contract) AddDocument(tctx contractapi.TransactionContextInterface, escrowID, documentID, kind, contentHash, metadataJSON string) (string, error) {
	inv, err := c.begin(tctx)
	if err != nil {
		return "", err
	}
	var meta documentMetadata
	if err := decodeArg("metadata", metadataJSON, &meta); err != nil {
		return "", reject(err)
	}
	return respond(inv.escrows.AddDocument(inv.ctx, id.EscrowID(escrowID), escrowservice.DocumentCommand{
		DocumentID:       documentID,
		Kind:             escrowmodels.DocumentKind(kind),
		ContentHash:      contentHash,
		IssuingAuthority: meta.IssuingAuthority,
		Metadata:         meta.Metadata,
	}))
}

func (c *Contract) MarkConditionMet(tctx contractapi.TransactionContextInterface, escrowID, conditionID, verifierID, notes string) (string, error) {
	inv, err := c.begin(tctx)
	if err != nil {
		return "", err
	}
	return respond(inv.escrows.MarkConditionMet(inv.ctx, id.EscrowID(escrowID), escrowservice.ConditionCommand{
		ConditionID: conditionID,
		VerifierID:  id.PartyID(verifierID),
		Notes:       notes,
	}))
}

// CompleteEscrow settles a ready escrow: ownership moves to the buyer and the
// transfer completes in the same transaction.
func (c *Contract) CompleteEscrow(tctx contractapi.TransactionContextInterface, escrowID string) (string, error) {
	inv, err := c.begin(tctx)
	if err != nil {
		return "", err
	}
	return respond(inv.escrows.CompleteEscrow(inv.ctx, id.EscrowID(escrowID)))
}

func (c *Contract) CancelEscrow(tctx contractapi.TransactionContextInterface, escrowID, reason string) (string, error) {
	inv, err := c.begin(tctx)
	if err != nil {
		return "", err
	}
	return respond(inv.escrows.CancelEscrow(inv.ctx, id.EscrowID(escrowID), reason))
}

func (c *Contract) GetEscrow(tctx contractapi.TransactionContextInterface, escrowID string) (string, error) {
	inv, err := c.begin(tctx)
	if err != nil {
		return "", err
	}
	e, version, err := inv.escrows.GetEscrow(inv.ctx, id.EscrowID(escrowID))
	if err != nil {
		return "", reject(err)
	}
	return respond(versioned{Value: e, Version: uint64(version)}, nil)
}

func (c *Contract) QueryEscrowsByProperty(tctx contractapi.TransactionContextInterface, propertyID string) (string, error) {
	inv, err := c.begin(tctx)
	if err != nil {
		return "", err
	}
	return respond(query.Collect(inv.query.EscrowsByProperty(inv.ctx, id.PropertyID(propertyID))))
}

func (c *Contract) QueryEscrowsByTransfer(tctx contractapi.TransactionContextInterface, transferID string) (string, error) {
	inv, err := c.begin(tctx)
	if err != nil {
		return "", err
	}
	return respond(query.Collect(inv.query.EscrowsByTransfer(inv.ctx, id.TransferID(transferID))))
}

// QueryEscrowsByParty lists escrows naming partyID. role is seller, buyer or
// empty for either.
func (c *Contract) QueryEscrowsByParty(tctx contractapi.TransactionContextInterface, partyID, role string) (string, error) {
	inv, err := c.begin(tctx)
	if err != nil {
		return "", err
	}
	r, err := query.ParseRole(role)
	if err != nil {
		return "", reject(err)
	}
	return respond(query.Collect(inv.query.EscrowsByParty(inv.ctx, id.PartyID(partyID), r)))
}

func (c *Contract) QueryEscrowsByStatus(tctx contractapi.TransactionContextInterface, status string) (string, error) {
	inv, err := c.begin(tctx)
	if err != nil {
		return "", err
	}
	return respond(query.Collect(inv.query.EscrowsByStatus(inv.ctx, escrowmodels.Status(status))))
}

func (c *Contract) QueryTransfersByProperty(tctx contractapi.TransactionContextInterface, propertyID string) (string, error) {
	inv, err := c.begin(tctx)
	if err != nil {
		return "", err
	}
	return respond(query.Collect(inv.query.TransfersByProperty(inv.ctx, id.PropertyID(propertyID))))
}

func (c *Contract) QueryTransfersByParty(tctx contractapi.TransactionContextInterface, partyID, role string) (string, error) {
	inv, err := c.begin(tctx)
	if err != nil {
		return "", err
	}
	r, err := query.ParseRole(role)
	if err != nil {
		return "", reject(err)
	}
	return respond(query.Collect(inv.query.TransfersByParty(inv.ctx, id.PartyID(partyID), r)))
}

func (c *Contract) QueryPropertiesByOwner(tctx contractapi.TransactionContextInterface, ownerID string) (string, error) {
	inv, err := c.begin(tctx)
	if err != nil {
		return "", err
	}
	return respond(query.Collect(inv.query.PropertiesByOwner(inv.ctx, id.PartyID(ownerID))))
}
