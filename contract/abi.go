package contract

// TierNFTABI is the subset of the TierNFT contract interface used by the
// client. mint and safeMint are alternative payable entrypoints; a given
// deployment exposes one of them.
const TierNFTABI = `[
  {
    "type": "function", "name": "totalSupply", "stateMutability": "view",
    "inputs": [],
    "outputs": [{ "name": "", "type": "uint256" }]
  },
  {
    "type": "function", "name": "tokenURI", "stateMutability": "view",
    "inputs": [{ "name": "tokenId", "type": "uint256" }],
    "outputs": [{ "name": "", "type": "string" }]
  },
  {
    "type": "function", "name": "tokenTier", "stateMutability": "view",
    "inputs": [{ "name": "", "type": "uint256" }],
    "outputs": [{ "name": "", "type": "uint256" }]
  },
  {
    "type": "function", "name": "name", "stateMutability": "view",
    "inputs": [],
    "outputs": [{ "name": "", "type": "string" }]
  },
  {
    "type": "function", "name": "symbol", "stateMutability": "view",
    "inputs": [],
    "outputs": [{ "name": "", "type": "string" }]
  },
  {
    "type": "function", "name": "balanceOf", "stateMutability": "view",
    "inputs": [{ "name": "owner", "type": "address" }],
    "outputs": [{ "name": "", "type": "uint256" }]
  },
  {
    "type": "function", "name": "ownerOf", "stateMutability": "view",
    "inputs": [{ "name": "tokenId", "type": "uint256" }],
    "outputs": [{ "name": "", "type": "address" }]
  },
  {
    "type": "function", "name": "mint", "stateMutability": "payable",
    "inputs": [],
    "outputs": []
  },
  {
    "type": "function", "name": "safeMint", "stateMutability": "payable",
    "inputs": [],
    "outputs": []
  },
  {
    "type": "event", "name": "Transfer", "anonymous": false,
    "inputs": [
      { "indexed": true, "name": "from", "type": "address" },
      { "indexed": true, "name": "to", "type": "address" },
      { "indexed": true, "name": "tokenId", "type": "uint256" }
    ]
  }
]`
