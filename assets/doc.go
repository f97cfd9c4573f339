// Package assets defines the asset-registry collaborator holding ownership
// records for the non-fungible assets auctions sell, along with an in-memory
// implementation.
//
// The engine relies on the custodian for three things only: querying the
// current owner, checking that it has been authorized to move an asset, and
// executing the transfer. Minting, metadata, and per-owner enumeration live
// entirely on the collaborator side.
package assets
