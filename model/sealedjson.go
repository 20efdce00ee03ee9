// Copyright 2022 Piprate Limited
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

import (
	"encoding/base64"

	"github.com/piprate/metalocker-seedvault/utils/jsonw"
)

// encryptJSONUnderSeed marshals v (via sonic, like every other wire type
// in this module) and seals it with the AES-256-GCM key EntryCipherKeyIV
// derives from seed.
func encryptJSONUnderSeed(seed Seed, v any) (string, error) {
	raw, err := jsonw.Marshal(v)
	if err != nil {
		return "", NewError(CodeBadJSON, err.Error())
	}
	key, _ := EntryCipherKeyIV(seed)
	ct, err := EncryptAESGCM(raw, key)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

func decryptJSONUnderSeed(seed Seed, encoded string, out any) error {
	ct, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return NewError(CodeBadJSON, "invalid ciphertext encoding")
	}
	key, _ := EntryCipherKeyIV(seed)
	raw, err := DecryptAESGCM(ct, key)
	if err != nil {
		return err
	}
	if err := jsonw.Unmarshal(raw, out); err != nil {
		return NewError(CodeBadJSON, err.Error())
	}
	return nil
}
