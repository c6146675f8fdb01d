// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_media

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// roomTokenTTL is the lifetime of a room access token (7 days).
const roomTokenTTL = 7 * 24 * time.Hour

// RoomClaims is the grant inside a room access token. Params carries the
// personalization parameters that become the media stream's start
// parameters when the holder joins.
type RoomClaims struct {
	Room     string            `json:"room"`
	Identity string            `json:"identity"`
	Params   map[string]string `json:"params,omitempty"`
	jwt.RegisteredClaims
}

// MintRoomToken signs an HS256 access token for one participant identity in
// one room.
func MintRoomToken(secret []byte, room, identity string, params map[string]string) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("room token secret is not configured")
	}
	now := time.Now()
	claims := RoomClaims{
		Room:     room,
		Identity: identity,
		Params:   params,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(roomTokenTTL)),
			Issuer:    "voice-gateway",
			Subject:   identity,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign room token: %w", err)
	}
	return signed, nil
}

// VerifyRoomToken parses and validates a room access token.
func VerifyRoomToken(secret []byte, tokenString string) (*RoomClaims, error) {
	claims := &RoomClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse room token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("room token is not valid")
	}
	if claims.Room == "" {
		return nil, fmt.Errorf("room token carries no room")
	}
	return claims, nil
}
