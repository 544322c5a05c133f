package gateway

import (
	"fmt"
	"strings"

	"github.com/permaweb/atlas/internal/models"
	"github.com/permaweb/atlas/internal/projects"
)

// All gateway queries are literal templates with string substitution: the
// public gateways ignore GraphQL variables at the server level, so the
// parameters are spliced into the query text directly.

const blockScanTemplate = `
query aoMainnet {
    transactions(
      sort: HEIGHT_ASC
      first: 100
      $afterclause
        tags: [$dataprotocol_tags]
        block: { min: $blockheight, max: $blockheight }
    ) {
        edges {
            cursor
            node {
                id
                recipient
                tags {
                    name
                    value
                }
                owner {
                    address
                }
                bundledIn {
                    id
                }
                block {
                    height
                    timestamp
                }
                data {
                    size
                }
            }
        }
        pageInfo {
            hasNextPage
        }
    }
}
`

const tokenScanTemplate = `
query $querylabel {
  transactions(
    first: 100
    sort: HEIGHT_ASC
    $afterclause
    $filterclause
    block: { min: $blockheight, max: $blockheight }
  ) {
    edges {
      cursor
      node {
        id
        owner {
          address
        }
        recipient
        tags {
          name
          value
        }
        block {
          id
          height
          timestamp
        }
        bundledIn {
          id
        }
        data {
          size
        }
      }
    }
    pageInfo {
      hasNextPage
    }
  }
}
`

const statsScanTemplate = `
query GetAoTxs {
  transactions(
    first: 100
    sort: HEIGHT_DESC,
    block: {min: $blockid, max: $blockid},
$cursorclause
    tags: [
      { name: "Data-Protocol", values: ["ao"] }
    ]
  ) {
    edges {
      cursor
      node {
        id
        owner { address }
        block { height timestamp }
        tags { name value }
      }
    }
    pageInfo {
      hasNextPage
    }
  }
}
`

const heightDescTemplate = `
query GetDetailedTransactions {
  transactions(
    first: $firstvar
    sort: HEIGHT_DESC
    owners: ["$ownervar"]
$afterclause
    tags: [$tagsvar]
  ) {
    edges {
      cursor
      node {
        id
        owner {
          address
        }
        tags {
          name
          value
        }
        block {
          id
          height
        }
      }
    }
    pageInfo {
      hasNextPage
    }
  }
}
`

// variantTags returns the tag predicate for a protocol variant. Variant A
// uses lower-case tag keys, variant B Header-Case keys.
func variantTags(variant models.Protocol) string {
	switch variant {
	case models.ProtocolA:
		return `{ name: "variant", values: ["ao.N.1"] }, { name: "data-protocol", values: ["ao"] }`
	default:
		return `{ name: "Variant", values: ["ao.N.1"] }, { name: "Data-Protocol", values: ["ao"] }`
	}
}

func blockScanQuery(variant models.Protocol, height uint32, cursor string) string {
	q := strings.Replace(blockScanTemplate, "$dataprotocol_tags", variantTags(variant), 1)
	q = strings.Replace(q, "$afterclause", afterClause(cursor), 1)
	return strings.ReplaceAll(q, "$blockheight", fmt.Sprintf("%d", height))
}

func tokenScanQuery(kind TokenQuery, height uint32, cursor string) string {
	var filter, label string
	switch kind {
	case TokenTransfer:
		filter = fmt.Sprintf(
			"owners: [%q]\n    recipients: [%q]\n    tags: [{ name: \"Action\", values: [\"Transfer\"] }]",
			projects.AOAuthority, projects.AOTokenPID,
		)
		label = "aoTokenTransfers"
	default:
		filter = fmt.Sprintf(
			"owners: [%q]\n    tags: [{ name: \"From-Process\", values: [%q] }]",
			projects.AOAuthority, projects.AOTokenPID,
		)
		label = "aoTokenProcessMsgs"
	}
	q := strings.Replace(tokenScanTemplate, "$querylabel", label, 1)
	q = strings.Replace(q, "$afterclause", afterClause(cursor), 1)
	q = strings.Replace(q, "$filterclause", filter, 1)
	return strings.ReplaceAll(q, "$blockheight", fmt.Sprintf("%d", height))
}

func statsScanQuery(height uint32, cursor string) string {
	q := strings.ReplaceAll(statsScanTemplate, "$blockid", fmt.Sprintf("%d", height))
	clause := ""
	if cursor != "" {
		clause = fmt.Sprintf("    after: %q,\n", cursor)
	}
	return strings.Replace(q, "$cursorclause", clause, 1)
}

func heightDescQuery(first int, owner, tags, cursor string) string {
	q := strings.Replace(heightDescTemplate, "$firstvar", fmt.Sprintf("%d", first), 1)
	q = strings.Replace(q, "$ownervar", owner, 1)
	q = strings.Replace(q, "$afterclause", afterClause(cursor), 1)
	return strings.Replace(q, "$tagsvar", tags, 1)
}

func afterClause(cursor string) string {
	if cursor == "" {
		return ""
	}
	return fmt.Sprintf("    after: %q\n", cursor)
}

func tagFilter(name, value string) string {
	return fmt.Sprintf("{ name: %q, values: [%q] }", name, value)
}
