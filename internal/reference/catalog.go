package reference

import "github.com/ghgledger/ghgledger/internal/gas"

// SeriesInfo describes a World Bank emissions series.
type SeriesInfo struct {
	Industry string
	GasType  string
	Unit     string
}

// WorldBankSeries is the built-in catalog of World Bank emissions series,
// used to fill in sector details when a seed lists only the series code.
var WorldBankSeries = map[string]SeriesInfo{
	"EN.ATM.GHGT.ZG":       {Industry: "Energy", GasType: gas.CO2, Unit: "% change from 1990"},
	"EN.ATM.METH.AG.ZS":    {Industry: "Agriculture", GasType: gas.Methane, Unit: "% of total"},
	"EN.ATM.NOXE.AG.ZS":    {Industry: "Agriculture", GasType: gas.NitrogenOxid, Unit: "% of total"},
	"EN.ATM.CO2E.KT":       {Industry: "All Sectors", GasType: gas.CO2Equiv, Unit: "kt"},
	"EN.CO2.ETOT.ZS":       {Industry: "Energy", GasType: gas.CO2, Unit: "% of total emissions"},
	"EN.CO2.MANF.ZS":       {Industry: "Manufacturing", GasType: gas.CO2, Unit: "% of total emissions"},
	"EN.CO2.OTHX.ZS":       {Industry: "Other", GasType: gas.CO2, Unit: "% of total emissions"},
	"EN.CO2.BLDG.ZS":       {Industry: "Buildings", GasType: gas.CO2, Unit: "% of total emissions"},
	"EN.CO2.TRAN.ZS":       {Industry: "Transport", GasType: gas.CO2, Unit: "% of total emissions"},
	"EN.ATM.METH.EG.ZS":    {Industry: "Energy", GasType: gas.Methane, Unit: "% of total"},
	"EN.ATM.METH.ZG":       {Industry: "All Sectors", GasType: gas.Methane, Unit: "% change from 1990"},
	"EN.ATM.HFCG.KT.CE":    {Industry: "Industry", GasType: gas.HFCs, Unit: "kt CO₂e"},
	"EN.ATM.NOXE.EG.ZS":    {Industry: "Energy", GasType: gas.NitrogenOxid, Unit: "% of total"},
	"EN.ATM.GHGT.KT.CE":    {Industry: "All Sectors", GasType: gas.TotalGHG, Unit: "kt CO₂e"},
	"EN.ATM.SF6G.KT.CE":    {Industry: "Industry", GasType: gas.SF6, Unit: "kt CO₂e"},
	"EN.ATM.PFCG.KT.CE":    {Industry: "Industry", GasType: gas.PFC, Unit: "kt CO₂e"},
	"EN.ATM.NOXE.ZG":       {Industry: "All Sectors", GasType: gas.NitrogenOxid, Unit: "% change from 1990"},
	"EN.ATM.NOXE.KT.CE":    {Industry: "All Sectors", GasType: gas.NitrogenOxid, Unit: "kt CO₂e"},
	"EN.ATM.METH.EG.KT.CE": {Industry: "Energy", GasType: gas.Methane, Unit: "kt CO₂e"},
	"EN.ATM.NOXE.EG.KT.CE": {Industry: "Energy", GasType: gas.NitrogenOxid, Unit: "kt CO₂e"},
	"EN.ATM.METH.KT.CE":    {Industry: "All Sectors", GasType: gas.Methane, Unit: "kt CO₂e"},
	"EN.ATM.METH.AG.KT.CE": {Industry: "Agriculture", GasType: gas.Methane, Unit: "kt CO₂e"},
	"EN.ATM.NOXE.AG.KT.CE": {Industry: "Agriculture", GasType: gas.NitrogenOxid, Unit: "kt CO₂e"},
}
