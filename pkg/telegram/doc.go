// Copyright 2024-2026 Aiku AI

// Package telegram is the Telegram backend of the relay. The relay account
// is a bot driven through the Bot API; it must be a member (for channels, an
// administrator) of every source and target chat.
//
// Chats are referenced by numeric ID ("-1001234567890") or by public
// username ("@news"). Copies use copyMessage, so text, media, captions and
// entities are reproduced by Telegram itself without a "forwarded from"
// header. Inline keyboards are attached again as reply markup.
package telegram
