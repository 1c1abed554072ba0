// pkg/model/tables.go
package model

// Target tables. Names follow the existing ods schema.
var (
	RegionTable = TableMetadata{
		Table:    "regiao",
		IDColumn: "id_regiao",
		Columns:  []Column{required("nome_regiao")},
	}

	IndicatorTable = TableMetadata{
		Table:    "indicador_economico",
		IDColumn: "id_indicador",
		Columns:  []Column{required("id_regiao")},
	}

	GDPTable = TableMetadata{
		Table: "pib",
		Columns: []Column{
			required("id_regiao"),
			required("id_indicador"),
			nullable("pib_total"),
			nullable("participacao_regiao_brasil"),
		},
	}

	TaxesTable = TableMetadata{
		Table: "impostos",
		Columns: []Column{
			required("id_regiao"),
			required("id_indicador"),
			nullable("impostos_total"),
			nullable("participacao_regiao_impostos"),
		},
	}

	GrossValueAddedTable = TableMetadata{
		Table: "valor_adicionado_bruto",
		Columns: []Column{
			required("id_indicador"),
			nullable("total_vab"),
			nullable("participacao_agro"),
			nullable("participacao_industria"),
			nullable("participacao_servicos"),
		},
	}

	HouseholdTable = TableMetadata{
		Table:    "familia",
		IDColumn: "id_familia",
		Columns: []Column{
			required("id_regiao"),
			nullable("situacao"),
			nullable("renda_familiar"),
			nullable("tipo_moradia"),
		},
	}

	PersonTable = TableMetadata{
		Table:    "pessoa",
		IDColumn: "id_pessoa",
		Columns: []Column{
			required("id_familia"),
			required("sexo"),
			required("idade"),
		},
	}

	NutritionTable = TableMetadata{
		Table: "alimentacao",
		Columns: []Column{
			required("id_pessoa"),
			nullable("consome_frutas_frequentemente"),
			nullable("consome_alimentos_ultraprocessados"),
			nullable("refeicao_escola_creche"),
		},
	}

	SchoolingTable = TableMetadata{
		Table: "escolaridade",
		Columns: []Column{
			required("id_pessoa"),
			nullable("frequenta_escola_creche"),
			nullable("matriculado"),
		},
	}

	HealthAccessTable = TableMetadata{
		Table: "acesso_saude",
		Columns: []Column{
			required("id_pessoa"),
			nullable("local_mais_frequente"),
		},
	}

	FoodSecurityTable = TableMetadata{
		Table:   "seguranca_alimentar",
		Columns: append([]Column{required("id_familia")}, foodSecurityColumns()...),
	}

	CleaningTable = TableMetadata{
		Table:    "cleaned_on_ingress",
		IDColumn: "id",
		Columns: []Column{
			required("run_id"),
			required("table_name"),
			required("column_name"),
			nullable("original_value"),
			nullable("new_value"),
			required("row_identifier"),
			required("cleaning_operation"),
			required("cleaning_reason"),
		},
	}
)

// FactTables hold rows keyed by ids synthesized in a run. A load requires
// them to be empty.
var FactTables = []TableMetadata{
	HouseholdTable,
	PersonTable,
	NutritionTable,
	SchoolingTable,
	HealthAccessTable,
	FoodSecurityTable,
	GDPTable,
	TaxesTable,
	GrossValueAddedTable,
}

func foodSecurityColumns() []Column {
	cols := make([]Column, len(FoodSecurityFields))
	for i, name := range FoodSecurityFields {
		cols[i] = nullable(name)
	}
	return cols
}
