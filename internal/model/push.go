package model

// PushSubscription registers a client device token for out-of-band spawn
// notifications.  The notification sender itself runs as a separate
// process; this service only maintains the registration records.
//
// Clearing a subscription blanks its fields instead of deleting the row:
// the sender may hold a reference to the token concurrently, and deleting
// would race its foreign-key updates.
//
// Fields:
//  Token           – opaque device token, primary key.
//  Server          – server the client wants notifications for.
//  WeiCardsOnly    – restrict notifications to rare-card spawns.
//  LastMerchantSent – id of the last sighting notified, set by the sender.
type PushSubscription struct {
    Token            string `json:"token"`
    Server           string `json:"server"`
    WeiCardsOnly     bool   `json:"wei_cards_only"`
    LastMerchantSent string `json:"-"`
}
