// Copyright 2020 Presidenza del Consiglio dei Ministri
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

// provinces indexes the two letter codes of the Italian provinces, as used on
// vehicle plates and in the mobile app's province picker.
var provinces = map[string]struct{}{
	"AG": {}, "AL": {}, "AN": {}, "AO": {}, "AP": {}, "AQ": {}, "AR": {},
	"AT": {}, "AV": {}, "BA": {}, "BG": {}, "BI": {}, "BL": {}, "BN": {},
	"BO": {}, "BR": {}, "BS": {}, "BT": {}, "BZ": {}, "CA": {}, "CB": {},
	"CE": {}, "CH": {}, "CL": {}, "CN": {}, "CO": {}, "CR": {}, "CS": {},
	"CT": {}, "CZ": {}, "EN": {}, "FC": {}, "FE": {}, "FG": {}, "FI": {},
	"FM": {}, "FR": {}, "GE": {}, "GO": {}, "GR": {}, "IM": {}, "IS": {},
	"KR": {}, "LC": {}, "LE": {}, "LI": {}, "LO": {}, "LT": {}, "LU": {},
	"MB": {}, "MC": {}, "ME": {}, "MI": {}, "MN": {}, "MO": {}, "MS": {},
	"MT": {}, "NA": {}, "NO": {}, "NU": {}, "OR": {}, "PA": {}, "PC": {},
	"PD": {}, "PE": {}, "PG": {}, "PI": {}, "PN": {}, "PO": {}, "PR": {},
	"PT": {}, "PU": {}, "PV": {}, "PZ": {}, "RA": {}, "RC": {}, "RE": {},
	"RG": {}, "RI": {}, "RM": {}, "RN": {}, "RO": {}, "SA": {}, "SI": {},
	"SO": {}, "SP": {}, "SR": {}, "SS": {}, "SU": {}, "SV": {}, "TA": {},
	"TE": {}, "TN": {}, "TO": {}, "TP": {}, "TR": {}, "TS": {}, "TV": {},
	"UD": {}, "VA": {}, "VB": {}, "VC": {}, "VE": {}, "VI": {}, "VR": {},
	"VT": {}, "VV": {},
}

// ValidProvince reports whether code is the two letter code of an Italian
// province. Codes are case sensitive: clients send them uppercase.
func ValidProvince(code string) bool {
	_, ok := provinces[code]
	return ok
}
