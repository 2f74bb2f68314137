package binding

// ProjectFactoryABI is the project registry interface.
const ProjectFactoryABI = `[
  {"type":"function","name":"registerUser","stateMutability":"nonpayable",
   "inputs":[{"name":"name","type":"string"},{"name":"profileIPFSHash","type":"string"}],"outputs":[]},
  {"type":"function","name":"isUserRegistered","stateMutability":"view",
   "inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"getUserProfile","stateMutability":"view",
   "inputs":[{"name":"user","type":"address"}],
   "outputs":[{"name":"","type":"tuple","components":[
     {"name":"isRegistered","type":"bool"},
     {"name":"name","type":"string"},
     {"name":"profileIPFSHash","type":"string"},
     {"name":"registeredAt","type":"uint256"},
     {"name":"projectCount","type":"uint256"},
     {"name":"totalInvested","type":"uint256"},
     {"name":"totalRaised","type":"uint256"}]}]},
  {"type":"function","name":"createProject","stateMutability":"nonpayable",
   "inputs":[
     {"name":"title","type":"string"},
     {"name":"description","type":"string"},
     {"name":"imageIPFSHash","type":"string"},
     {"name":"documentsIPFSHash","type":"string"},
     {"name":"targetAmountUSDC","type":"uint256"},
     {"name":"durationDays","type":"uint256"},
     {"name":"location","type":"string"},
     {"name":"category","type":"string"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getProject","stateMutability":"view",
   "inputs":[{"name":"projectId","type":"uint256"}],
   "outputs":[{"name":"","type":"tuple","components":[
     {"name":"id","type":"uint256"},
     {"name":"farmer","type":"address"},
     {"name":"title","type":"string"},
     {"name":"description","type":"string"},
     {"name":"imageIPFSHash","type":"string"},
     {"name":"documentsIPFSHash","type":"string"},
     {"name":"targetAmountUSDC","type":"uint256"},
     {"name":"currentAmountUSDC","type":"uint256"},
     {"name":"durationDays","type":"uint256"},
     {"name":"createdAt","type":"uint256"},
     {"name":"deadline","type":"uint256"},
     {"name":"status","type":"uint8"},
     {"name":"location","type":"string"},
     {"name":"category","type":"string"},
     {"name":"investorCount","type":"uint256"},
     {"name":"fundsReleased","type":"bool"}]}]},
  {"type":"function","name":"getAllProjects","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"tuple[]","components":[
     {"name":"id","type":"uint256"},
     {"name":"farmer","type":"address"},
     {"name":"title","type":"string"},
     {"name":"description","type":"string"},
     {"name":"imageIPFSHash","type":"string"},
     {"name":"documentsIPFSHash","type":"string"},
     {"name":"targetAmountUSDC","type":"uint256"},
     {"name":"currentAmountUSDC","type":"uint256"},
     {"name":"durationDays","type":"uint256"},
     {"name":"createdAt","type":"uint256"},
     {"name":"deadline","type":"uint256"},
     {"name":"status","type":"uint8"},
     {"name":"location","type":"string"},
     {"name":"category","type":"string"},
     {"name":"investorCount","type":"uint256"},
     {"name":"fundsReleased","type":"bool"}]}]},
  {"type":"function","name":"getPlatformStats","stateMutability":"view","inputs":[],
   "outputs":[
     {"name":"totalProjects","type":"uint256"},
     {"name":"totalUsers","type":"uint256"},
     {"name":"totalInvestments","type":"uint256"},
     {"name":"totalFunding","type":"uint256"}]},
  {"type":"event","name":"ProjectCreated","anonymous":false,
   "inputs":[
     {"name":"projectId","type":"uint256","indexed":true},
     {"name":"farmer","type":"address","indexed":true},
     {"name":"title","type":"string","indexed":false},
     {"name":"targetAmount","type":"uint256","indexed":false}]},
  {"type":"event","name":"UserRegistered","anonymous":false,
   "inputs":[
     {"name":"user","type":"address","indexed":true},
     {"name":"name","type":"string","indexed":false}]}
]`

// InvestmentManagerABI is the investment manager interface.
const InvestmentManagerABI = `[
  {"type":"function","name":"investInProject","stateMutability":"nonpayable",
   "inputs":[{"name":"projectId","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"getInvestorData","stateMutability":"view",
   "inputs":[{"name":"investor","type":"address"}],
   "outputs":[
     {"name":"totalInvested","type":"uint256"},
     {"name":"activeInvestments","type":"uint256"},
     {"name":"claimedReturns","type":"uint256"},
     {"name":"pendingAmount","type":"uint256"},
     {"name":"projectIds","type":"uint256[]"}]},
  {"type":"event","name":"InvestmentMade","anonymous":false,
   "inputs":[
     {"name":"projectId","type":"uint256","indexed":true},
     {"name":"investor","type":"address","indexed":true},
     {"name":"amount","type":"uint256","indexed":false}]}
]`

// StableTokenABI is the ERC-20 subset used for payments.
const StableTokenABI = `[
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"allowance","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"approve","stateMutability":"nonpayable",
   "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"decimals","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"uint8"}]}
]`
